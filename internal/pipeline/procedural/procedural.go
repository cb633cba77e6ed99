// Package procedural is a deterministic in-process generation backend. It
// stands in for a diffusion model during development: latents are seeded
// from the prompt and decoded by displacing an icosphere.
package procedural

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/unixpickle/model3d/model3d"

	"github.com/gaspardpetit/text2mesh/internal/mesh"
	"github.com/gaspardpetit/text2mesh/internal/pipeline"
)

const (
	// LatentDim is the number of values in one latent.
	LatentDim = 64
	// harmonic is the number of latent values consumed per displacement term.
	harmonic = 8
)

// Backend implements pipeline.Backend without any external service.
type Backend struct {
	// Subdivisions controls the icosphere resolution used by the decoder.
	Subdivisions int
	// Amplitude bounds the radial displacement relative to the unit sphere.
	Amplitude float64

	// cudaMarkers are files whose presence indicates a usable NVIDIA driver.
	cudaMarkers []string
}

// New returns a Backend with default decoder settings.
func New() *Backend {
	return &Backend{
		Subdivisions: 3,
		Amplitude:    0.35,
		cudaMarkers:  []string{"/proc/driver/nvidia/version", "/dev/nvidiactl"},
	}
}

var _ pipeline.Backend = (*Backend)(nil)

// AcceleratorAvailable reports whether an NVIDIA driver is visible to the
// process. CUDA_VISIBLE_DEVICES set to "" or "-1" hides it.
func (b *Backend) AcceleratorAvailable(ctx context.Context) (bool, error) {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok && (v == "" || v == "-1") {
		return false, nil
	}
	for _, p := range b.cudaMarkers {
		if _, err := os.Stat(p); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// LoadModel returns a handle for name. Any non-empty name is accepted.
func (b *Backend) LoadModel(ctx context.Context, name, device string) (pipeline.Model, error) {
	if name == "" {
		return pipeline.Model{}, errors.New("model name is required")
	}
	return pipeline.Model{Name: name, Device: device, Handle: uuid.NewString()}, nil
}

// DiffusionFromConfig returns a handle for the sampler configuration.
func (b *Backend) DiffusionFromConfig(ctx context.Context, name string, useFP16 bool) (pipeline.Diffusion, error) {
	return pipeline.Diffusion{Name: name, UseFP16: useFP16, Handle: uuid.NewString()}, nil
}

// SampleLatents produces BatchSize latents. Each one mixes the conditional
// latent of its prompt with the unconditional latent using classifier-free
// guidance: uncond + scale*(cond-uncond).
func (b *Backend) SampleLatents(ctx context.Context, req pipeline.SampleRequest) ([]pipeline.Latent, error) {
	if len(req.Prompts) == 0 {
		return nil, errors.New("at least one prompt is required")
	}
	if req.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", req.BatchSize)
	}
	out := make([]pipeline.Latent, 0, req.BatchSize)
	for i := 0; i < req.BatchSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cond := seeded(req.Prompts[i%len(req.Prompts)], i)
		uncond := seeded("", i)
		data := make([]float32, LatentDim)
		for j := range data {
			data[j] = float32(uncond[j] + req.GuidanceScale*(cond[j]-uncond[j]))
		}
		out = append(out, pipeline.Latent{ID: uuid.NewString(), Shape: []int{LatentDim}, Data: data})
	}
	return out, nil
}

// DecodeLatentMesh displaces a unit icosphere radially by a sum of
// harmonics whose frequency, phase and weight come from the latent.
func (b *Backend) DecodeLatentMesh(ctx context.Context, model pipeline.Model, l pipeline.Latent) (*mesh.Mesh, error) {
	if len(l.Data) != LatentDim {
		return nil, fmt.Errorf("latent has %d values, want %d", len(l.Data), LatentDim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := make([]term, 0, LatentDim/harmonic)
	var total float64
	for k := 0; k+harmonic <= len(l.Data); k += harmonic {
		v := l.Data[k : k+harmonic]
		t := term{
			freq:   model3d.XYZ(squash(v[0])*4, squash(v[1])*4, squash(v[2])*4),
			phase:  float64(v[3]),
			weight: math.Abs(squash(v[4])),
		}
		total += t.weight
		terms = append(terms, t)
	}
	if total == 0 {
		total = 1
	}
	amp := b.Amplitude
	displace := func(c model3d.Coord3D) model3d.Coord3D {
		dir := c.Normalize()
		var s float64
		for _, t := range terms {
			s += t.weight * math.Sin(t.freq.Dot(dir)+t.phase)
		}
		return dir.Scale(1 + amp*s/total)
	}

	// TriangleSlice order is not stable, so sort the base triangles to keep
	// vertex numbering identical between runs.
	base := model3d.NewMeshIcosphere(model3d.Coord3D{}, 1, b.Subdivisions).TriangleSlice()
	slices.SortFunc(base, compareTriangles)
	out := make([]*model3d.Triangle, len(base))
	for i, t := range base {
		out[i] = &model3d.Triangle{displace(t[0]), displace(t[1]), displace(t[2])}
	}
	return mesh.FromTriangles(out), nil
}

func compareTriangles(a, b *model3d.Triangle) int {
	for i := range a {
		if c := cmp.Compare(a[i].X, b[i].X); c != 0 {
			return c
		}
		if c := cmp.Compare(a[i].Y, b[i].Y); c != 0 {
			return c
		}
		if c := cmp.Compare(a[i].Z, b[i].Z); c != 0 {
			return c
		}
	}
	return 0
}

type term struct {
	freq   model3d.Coord3D
	phase  float64
	weight float64
}

func squash(v float32) float64 { return math.Tanh(float64(v)) }

// seeded returns a deterministic standard-normal vector for prompt and the
// batch index.
func seeded(prompt string, index int) []float64 {
	sum := sha256.Sum256([]byte(prompt))
	s1 := binary.LittleEndian.Uint64(sum[0:8]) ^ uint64(index)
	s2 := binary.LittleEndian.Uint64(sum[8:16])
	rng := rand.New(rand.NewPCG(s1, s2))
	out := make([]float64, LatentDim)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}
