package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/gaspardpetit/text2mesh/internal/generate"
	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/serverstate"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// GenerateHandler serves POST /generate. Every failure is reported as a 500
// with the error message; only draining yields a different status.
func GenerateHandler(svc *generate.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			writeError(w, http.StatusServiceUnavailable, "server draining")
			return
		}
		req, err := generate.DecodeRequest(r.Body)
		if err != nil {
			svc.Reject(r.Context(), err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		art, err := svc.Generate(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeArtifact(w, art)
	}
}

func writeArtifact(w http.ResponseWriter, art *generate.Artifact) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	h := w.Header()
	h.Set("Content-Type", art.MIMEType)
	h.Set("Content-Disposition", disposition)
	h.Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		logx.Log.Warn().Err(err).Str("file", art.Filename).Msg("write mesh")
	}
}
