package server

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 2 * time.Second

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// HandleHealthz responds to liveness probes. The process is alive as long as it can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz runs the named checks in order and reports the first failure.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.deps.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := check.Fn(ctx)
		cancel()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	// Set headers before writing status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
