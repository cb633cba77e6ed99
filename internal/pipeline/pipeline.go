package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/mesh"
	"github.com/gaspardpetit/text2mesh/internal/reconnect"
)

// Options configures Load.
type Options struct {
	Model          string
	Device         string
	UseFP16        bool
	GuidanceScale  float64
	MaxConcurrency int
	LoadRetries    int
}

// Pipeline holds the process-wide model state. It is immutable after Load
// and safe for concurrent use; access to the backend is gated by a
// semaphore sized by MaxConcurrency.
type Pipeline struct {
	backend   Backend
	model     Model
	diffusion Diffusion
	device    string
	guidance  float64
	gate      *semaphore.Weighted
}

// retryDelay is swapped in tests.
var retryDelay = reconnect.Delay

// Load selects the device and loads the model and diffusion configuration.
// Failed attempts are retried following the reconnect schedule.
func Load(ctx context.Context, b Backend, opts Options) (*Pipeline, error) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.LoadRetries <= 0 {
		opts.LoadRetries = 1
	}
	var lastErr error
	for attempt := 0; attempt < opts.LoadRetries; attempt++ {
		if attempt > 0 {
			d := retryDelay(attempt - 1)
			logx.Log.Warn().Err(lastErr).Int("attempt", attempt).Dur("retry_in", d).Msg("model load failed")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		p, err := load(ctx, b, opts)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("load model %q after %d attempts: %w", opts.Model, opts.LoadRetries, lastErr)
}

func load(ctx context.Context, b Backend, opts Options) (*Pipeline, error) {
	device, err := SelectDevice(ctx, b, opts.Device)
	if err != nil {
		return nil, err
	}
	model, err := b.LoadModel(ctx, opts.Model, device)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	diffusion, err := b.DiffusionFromConfig(ctx, opts.Model, opts.UseFP16)
	if err != nil {
		return nil, fmt.Errorf("diffusion config: %w", err)
	}
	logx.Log.Info().Str("model", model.Name).Str("device", device).Bool("fp16", opts.UseFP16).Msg("model loaded")
	return &Pipeline{
		backend:   b,
		model:     model,
		diffusion: diffusion,
		device:    device,
		guidance:  opts.GuidanceScale,
		gate:      semaphore.NewWeighted(int64(opts.MaxConcurrency)),
	}, nil
}

// Device returns the compute device selected at start-up.
func (p *Pipeline) Device() string { return p.device }

// Model returns the loaded model handle.
func (p *Pipeline) Model() Model { return p.model }

// Generate samples one latent for prompt and decodes it into a mesh.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (*mesh.Mesh, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for pipeline: %w", err)
	}
	defer p.gate.Release(1)

	latents, err := p.backend.SampleLatents(ctx, SampleRequest{
		Model:         p.model,
		Diffusion:     p.diffusion,
		BatchSize:     1,
		GuidanceScale: p.guidance,
		Prompts:       []string{prompt},
		Progress:      false,
		Device:        p.device,
	})
	if err != nil {
		return nil, fmt.Errorf("sample latents: %w", err)
	}
	if len(latents) == 0 {
		return nil, ErrNoLatents
	}
	m, err := p.backend.DecodeLatentMesh(ctx, p.model, latents[0])
	if err != nil {
		return nil, fmt.Errorf("decode latent: %w", err)
	}
	return m, nil
}
