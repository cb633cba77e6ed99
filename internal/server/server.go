package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/text2mesh/internal/api"
	"github.com/gaspardpetit/text2mesh/internal/config"
	"github.com/gaspardpetit/text2mesh/internal/generate"
	"github.com/gaspardpetit/text2mesh/internal/inflight"
)

// Deps are the runtime components served by the router.
type Deps struct {
	Service  *generate.Service
	Device   string
	Inflight *inflight.Counter
	Gatherer prometheus.Gatherer
	// MCP is mounted on /mcp when non-nil.
	MCP http.Handler
}

// New constructs the HTTP handler for the server.
func New(cfg config.ServerConfig, d Deps) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Content-Disposition"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	if d.Inflight == nil {
		d.Inflight = &inflight.Counter{}
	}
	r.With(d.Inflight.Middleware).Post("/generate", api.GenerateHandler(d.Service))
	r.Get("/health", api.HealthHandler(d.Device))
	state := &api.StateHandler{Inflight: d.Inflight}
	r.Get("/state", state.GetState)
	r.Get("/openapi.json", api.OpenAPIHandler())

	if d.MCP != nil {
		r.Handle("/mcp", d.MCP)
	}
	if cfg.MetricsOnMainPort() {
		g := d.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r
}

// MetricsHandler serves /metrics alone, for a dedicated metrics listener.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
