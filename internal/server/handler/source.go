package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/paperbot/internal/strategy"
)

// SourceHandler manages the watched sources of each strategy.
type SourceHandler struct {
	bots   *strategy.Registry
	logger *slog.Logger
}

// NewSourceHandler creates a SourceHandler.
func NewSourceHandler(bots *strategy.Registry, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{bots: bots, logger: logHandler(logger, "source")}
}

// AddSourceRequest is the JSON body for POST .../sources.
type AddSourceRequest struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// UpdateSourceRequest is the JSON body for PATCH .../sources/{id}.
type UpdateSourceRequest struct {
	Enabled *bool `json:"enabled"`
}

// List returns a strategy's sources with health and trade stats.
// GET /api/strategies/{name}/sources
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": bot.Sources()})
}

// Add starts watching a new source.
// POST /api/strategies/{name}/sources
func (h *SourceHandler) Add(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	var req AddSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	src, err := bot.AddSource(req.ID, strings.TrimSpace(req.Nickname))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// Update pauses or resumes a source.
// PATCH /api/strategies/{name}/sources/{id}
func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	var req UpdateSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	src, err := bot.SetEnabled(pathParam(r, "id"), *req.Enabled)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// Remove stops watching a source and closes what it still holds.
// DELETE /api/strategies/{name}/sources/{id}
func (h *SourceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	src, err := bot.RemoveSource(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": src.ID})
}

// Analysis profiles a source's own trading history: sizing, entry prices,
// market categories and activity. Results are cached for five minutes.
// GET /api/strategies/{name}/sources/{id}/analysis
func (h *SourceHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	a, err := bot.SourceAnalysis(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
