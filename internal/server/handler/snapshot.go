package handler

import (
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Snapshotter is the event bus's aggregate view.
type Snapshotter interface {
	Snapshot() domain.Snapshot
}

// SnapshotHandler serves the cross-strategy state dump.
type SnapshotHandler struct {
	src Snapshotter
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(src Snapshotter) *SnapshotHandler {
	return &SnapshotHandler{src: src}
}

// GetSnapshot returns every strategy's overview, positions, queue, resolved
// feed and sources.
// GET /api/snapshot
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Snapshot())
}
