// Package remote is a pipeline.Backend that delegates every capability to
// an inference worker over JSON/HTTP. The worker hosts the diffusion model
// and the latent decoder.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/mesh"
	"github.com/gaspardpetit/text2mesh/internal/pipeline"
)

// ErrBackend wraps every non-2xx response from the worker.
var ErrBackend = errors.New("backend error")

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to the inference worker.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// New returns a Client for the worker at base. A zero timeout leaves calls
// bounded only by their context.
func New(base, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ pipeline.Backend = (*Client)(nil)

type deviceResponse struct {
	CUDAAvailable bool `json:"cuda_available"`
}

type loadRequest struct {
	Model  string `json:"model"`
	Device string `json:"device"`
}

type diffusionRequest struct {
	Model   string `json:"model"`
	UseFP16 bool   `json:"use_fp16"`
}

type handleResponse struct {
	Handle string `json:"handle"`
}

type sampleRequest struct {
	ModelHandle     string `json:"model_handle"`
	DiffusionHandle string `json:"diffusion_handle"`
	pipeline.SampleRequest
}

type sampleResponse struct {
	Latents []pipeline.Latent `json:"latents"`
}

type decodeRequest struct {
	ModelHandle string          `json:"model_handle"`
	Latent      pipeline.Latent `json:"latent"`
}

// AcceleratorAvailable asks the worker whether it has a CUDA device.
func (c *Client) AcceleratorAvailable(ctx context.Context) (bool, error) {
	var res deviceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/device", nil, &res); err != nil {
		return false, err
	}
	return res.CUDAAvailable, nil
}

// LoadModel asks the worker to load the named model on device.
func (c *Client) LoadModel(ctx context.Context, name, device string) (pipeline.Model, error) {
	var res handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/models/load", loadRequest{Model: name, Device: device}, &res); err != nil {
		return pipeline.Model{}, err
	}
	if res.Handle == "" {
		return pipeline.Model{}, fmt.Errorf("%w: load returned no handle", ErrBackend)
	}
	return pipeline.Model{Name: name, Device: device, Handle: res.Handle}, nil
}

// DiffusionFromConfig asks the worker for the model's sampler configuration.
func (c *Client) DiffusionFromConfig(ctx context.Context, name string, useFP16 bool) (pipeline.Diffusion, error) {
	var res handleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/diffusion", diffusionRequest{Model: name, UseFP16: useFP16}, &res); err != nil {
		return pipeline.Diffusion{}, err
	}
	if res.Handle == "" {
		return pipeline.Diffusion{}, fmt.Errorf("%w: diffusion returned no handle", ErrBackend)
	}
	return pipeline.Diffusion{Name: name, UseFP16: useFP16, Handle: res.Handle}, nil
}

// SampleLatents runs the sampler on the worker.
func (c *Client) SampleLatents(ctx context.Context, req pipeline.SampleRequest) ([]pipeline.Latent, error) {
	body := sampleRequest{
		ModelHandle:     req.Model.Handle,
		DiffusionHandle: req.Diffusion.Handle,
		SampleRequest:   req,
	}
	var res sampleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sample", body, &res); err != nil {
		return nil, err
	}
	return res.Latents, nil
}

// DecodeLatentMesh asks the worker to decode a latent into a mesh.
func (c *Client) DecodeLatentMesh(ctx context.Context, model pipeline.Model, l pipeline.Latent) (*mesh.Mesh, error) {
	var m mesh.Mesh
	if err := c.do(ctx, http.MethodPost, "/v1/decode", decodeRequest{ModelHandle: model.Handle, Latent: l}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	logx.Log.Debug().Str("backend_request_id", reqID).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(path string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("%w: %s returned %d: %s", ErrBackend, path, resp.StatusCode, msg)
}
