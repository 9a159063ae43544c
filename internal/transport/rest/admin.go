package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

type statsSource interface {
	GroupStats(ctx context.Context) ([]domain.GroupStat, error)
}

type statsCache interface {
	Invalidate()
}

// AdminHandler serves operator endpoints. Routes are mounted behind
// middleware.AdminOnly.
type AdminHandler struct {
	stats statsSource
	cache statsCache
	log   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(logger *slog.Logger, stats statsSource, cache statsCache) *AdminHandler {
	return &AdminHandler{
		stats: stats,
		cache: cache,
		log:   logger.With("handler", "admin"),
	}
}

type groupStatResponse struct {
	GroupKey  string `json:"group_key"`
	Available int    `json:"available"`
}

// GroupStats returns the number of claimable items per group.
// GET /api/v1/admin/groups
func (h *AdminHandler) GroupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GroupStats(r.Context())
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	out := make([]groupStatResponse, len(stats))
	for i, s := range stats {
		out[i] = groupStatResponse{GroupKey: s.GroupKey, Available: s.Available}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

// RefreshStats drops the cached group availability used for sampling.
// POST /api/v1/admin/groups/refresh
func (h *AdminHandler) RefreshStats(w http.ResponseWriter, r *http.Request) {
	h.cache.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}
