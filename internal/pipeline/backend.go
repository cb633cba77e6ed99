// Package pipeline wraps an external text-to-3D generation backend: it
// selects the compute device, loads the model and diffusion configuration
// once at start-up and runs sample-then-decode for each prompt.
package pipeline

import (
	"context"
	"errors"

	"github.com/gaspardpetit/text2mesh/internal/mesh"
)

// Compute devices.
const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// ErrNoLatents is returned when sampling yields an empty batch.
var ErrNoLatents = errors.New("sampler returned no latents")

// Model is an opaque handle to a loaded pretrained model.
type Model struct {
	Name   string `json:"name"`
	Device string `json:"device"`
	Handle string `json:"handle"`
}

// Diffusion is an opaque handle to a sampler configuration.
type Diffusion struct {
	Name    string `json:"name"`
	UseFP16 bool   `json:"use_fp16"`
	Handle  string `json:"handle"`
}

// Latent is the latent representation of one generated object.
type Latent struct {
	ID    string    `json:"id"`
	Shape []int     `json:"shape,omitempty"`
	Data  []float32 `json:"data"`
}

// SampleRequest carries the parameters of one sampling call.
type SampleRequest struct {
	Model         Model     `json:"-"`
	Diffusion     Diffusion `json:"-"`
	BatchSize     int       `json:"batch_size"`
	GuidanceScale float64   `json:"guidance_scale"`
	Prompts       []string  `json:"prompts"`
	Progress      bool      `json:"progress"`
	Device        string    `json:"device"`
}

// Backend is the set of capabilities a generation backend provides.
type Backend interface {
	// AcceleratorAvailable reports whether a CUDA device can be used.
	AcceleratorAvailable(ctx context.Context) (bool, error)
	// LoadModel loads the named pretrained model onto device.
	LoadModel(ctx context.Context, name, device string) (Model, error)
	// DiffusionFromConfig returns the sampler configuration for the named model.
	DiffusionFromConfig(ctx context.Context, name string, useFP16 bool) (Diffusion, error)
	// SampleLatents runs the diffusion sampler for the prompts in req.
	SampleLatents(ctx context.Context, req SampleRequest) ([]Latent, error)
	// DecodeLatentMesh converts a latent into a triangle mesh.
	DecodeLatentMesh(ctx context.Context, model Model, latent Latent) (*mesh.Mesh, error)
}
