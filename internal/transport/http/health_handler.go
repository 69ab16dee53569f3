package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"codebridge/internal/store"
	"codebridge/pkg/contracts"
	"codebridge/pkg/contracts/domain"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  s,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. The store is probed with a read
// of a key that is never written; a not-found answer proves the round
// trip worked.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := domain.HealthResponse{
		Status:  "ok",
		Store:   "ok",
		Version: contracts.Version,
		Time:    time.Now().UTC(),
	}

	if _, err := h.store.Get(r.Context(), "health:probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.WarnContext(r.Context(), "health probe: store unreachable",
			slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Store = "unavailable"
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, resp)
}

// Version handles GET /api/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
