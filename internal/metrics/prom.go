package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "text2mesh_build_info",
			Help: "Build information",
		},
		[]string{"date", "sha", "version"},
	)

	modelInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "text2mesh_model_info",
			Help: "Model and device loaded at start-up",
		},
		[]string{"model", "device"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2mesh_generations_total",
			Help: "Generation requests by export branch and outcome",
		},
		[]string{"format", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "text2mesh_generation_duration_seconds",
			Help:    "Time spent sampling, decoding and exporting a mesh",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"format"},
	)

	meshTriangles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "text2mesh_mesh_triangles",
			Help:    "Triangle count of generated meshes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "text2mesh_inflight_requests",
			Help: "Generation requests currently being served",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, modelInfo, generations, generationDuration, meshTriangles, inflight)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetModelInfo records the model and device loaded at start-up.
func SetModelInfo(model, device string) {
	modelInfo.Reset()
	modelInfo.WithLabelValues(model, device).Set(1)
}

// RecordGeneration counts a finished generation. branch is the export branch
// taken ("stl", "gltf-binary" or "none" when the body was rejected) and
// outcome is "success" or an error kind.
func RecordGeneration(branch, outcome string, d time.Duration) {
	generations.WithLabelValues(branch, outcome).Inc()
	generationDuration.WithLabelValues(branch).Observe(d.Seconds())
}

// ObserveTriangles records the size of a generated mesh.
func ObserveTriangles(n int) {
	meshTriangles.Observe(float64(n))
}

// SetInflight publishes the in-flight request count.
func SetInflight(n int64) {
	inflight.Set(float64(n))
}
