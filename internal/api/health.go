package api

import (
	"encoding/json"
	"net/http"
)

// Health is the body of GET /health.
type Health struct {
	Status string `json:"status"`
	Device string `json:"device"`
}

// HealthHandler reports liveness and the device selected at start-up.
func HealthHandler(device string) http.HandlerFunc {
	body, _ := json.Marshal(Health{Status: "ok", Device: device})
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}
