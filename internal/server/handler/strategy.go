package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/strategy"
)

// StrategyHandler serves per-strategy state and admin actions.
type StrategyHandler struct {
	bots   *strategy.Registry
	logger *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(bots *strategy.Registry, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{bots: bots, logger: logHandler(logger, "strategy")}
}

// List returns a summary of every strategy.
// GET /api/strategies
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": h.bots.ListInfo()})
}

// Get returns one strategy's full snapshot.
// GET /api/strategies/{name}
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bot.Snapshot())
}

// Reset closes every open position at entry, empties the queue and zeroes
// the ledger.
// POST /api/strategies/{name}/reset
func (h *StrategyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	res := bot.Reset()
	h.logger.InfoContext(r.Context(), "strategy reset",
		slog.String("strategy", bot.Name()),
		slog.Int("closed", len(res.Closed)),
		slog.Int("dropped_queue", res.DroppedQueue),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"strategy":      bot.Name(),
		"closed":        len(res.Closed),
		"dropped_queue": res.DroppedQueue,
		"epoch":         res.Epoch,
	})
}

// ClosePosition closes one open position at its current mark.
// POST /api/strategies/{name}/positions/{id}/close
func (h *StrategyHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(pathParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	pos, err := bot.ClosePosition(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}
