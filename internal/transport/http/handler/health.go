package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// ReadinessCheck reports whether one backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler answers liveness ("ping") and readiness ("ready") probes.
type HealthHandler struct {
	checks map[string]ReadinessCheck
}

// NewHealthHandler creates the handler. checks may be nil.
func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// ReadinessEnvelope lists the backing services that failed their check.
type ReadinessEnvelope struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		h.ready(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *HealthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var failed []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSON(w, http.StatusServiceUnavailable, ReadinessEnvelope{Status: "degraded", Failed: failed})
		return
	}
	writeJSON(w, http.StatusOK, ReadinessEnvelope{Status: "ok"})
}
