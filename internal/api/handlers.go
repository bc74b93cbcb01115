// Package api serves the operational HTTP surface: liveness, readiness and
// the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Checker reports whether a dependency can serve traffic.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Label }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type Handler struct {
	checks       []Checker
	checkTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewHandler(logger *zap.SugaredLogger, checks ...Checker) *Handler {
	return &Handler{
		checks:       checks,
		checkTimeout: 2 * time.Second,
		logger:       logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz runs every dependency check and answers 503 when any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	resp := HealthDTO{Status: "ready", Reasons: []string{}}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warnw("Readiness check failed", "check", c.Name(), "error", err)
			resp.Reasons = append(resp.Reasons, c.Name()+": "+err.Error())
		}
	}

	status := http.StatusOK
	if len(resp.Reasons) > 0 {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("Failed to encode response", "error", err)
	}
}
