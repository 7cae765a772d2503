package handler

import (
	"net/http"
	"time"
)

// NameLister reports the running strategies.
type NameLister interface {
	List() []string
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	bots      NameLister
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(bots NameLister, startedAt time.Time) *HealthHandler {
	return &HealthHandler{bots: bots, startedAt: startedAt}
}

// HealthCheck responds with liveness, uptime and the running strategies.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      now.Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.startedAt).Seconds()),
		"strategies":     h.bots.List(),
	})
}
