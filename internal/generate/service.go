// Package generate turns a prompt into an exported mesh file.
package generate

import (
	"context"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/mesh"
	"github.com/gaspardpetit/text2mesh/internal/metrics"
)

// Generator produces one mesh for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*mesh.Mesh, error)
}

// Artifact is an exported mesh file ready to be served.
type Artifact struct {
	Format    string
	Filename  string
	MIMEType  string
	Data      []byte
	Triangles int
}

// Service runs generation requests against a shared Generator.
type Service struct {
	gen     Generator
	timeout time.Duration
}

// NewService returns a Service. A zero timeout leaves requests unbounded.
func NewService(gen Generator, timeout time.Duration) *Service {
	return &Service{gen: gen, timeout: timeout}
}

// Generate samples, decodes and exports one mesh for req.
func (s *Service) Generate(ctx context.Context, req Request) (*Artifact, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	format := req.EffectiveFormat()
	start := time.Now()
	art, err := s.run(ctx, req.Prompt, format)
	s.record(ctx, format, art, err, time.Since(start))
	return art, err
}

func (s *Service) run(ctx context.Context, prompt, format string) (*Artifact, error) {
	m, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, &Error{Kind: KindPipeline, Err: err}
	}
	data, mimeType, err := mesh.Export(m, format)
	if err != nil {
		return nil, &Error{Kind: KindExport, Err: err}
	}
	return &Artifact{
		Format:    format,
		Filename:  "model." + format,
		MIMEType:  mimeType,
		Data:      data,
		Triangles: len(m.Faces),
	}, nil
}

// Reject records a request that failed before reaching the pipeline.
func (s *Service) Reject(ctx context.Context, err error) {
	s.record(ctx, "", nil, err, 0)
}

func (s *Service) record(ctx context.Context, format string, art *Artifact, err error, d time.Duration) {
	reqID := chiMiddleware.GetReqID(ctx)
	if err != nil {
		kind := KindOf(err)
		branch := "none"
		if kind != KindValidation {
			branch = branchOf(format)
		}
		metrics.RecordGeneration(branch, string(kind), d)
		logx.Log.Error().Err(err).Str("request_id", reqID).Str("kind", string(kind)).Dur("duration", d).Msg("generation failed")
		return
	}
	metrics.RecordGeneration(branchOf(format), "success", d)
	metrics.ObserveTriangles(art.Triangles)
	logx.Log.Info().Str("request_id", reqID).Str("format", format).Int("triangles", art.Triangles).
		Int("bytes", len(art.Data)).Dur("duration", d).Msg("generated")
}

func branchOf(format string) string {
	if mesh.IsSTL(format) {
		return "stl"
	}
	return "gltf-binary"
}
