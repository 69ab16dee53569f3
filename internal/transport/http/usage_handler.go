package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "codebridge/internal/errors"
	"codebridge/internal/license"
	"codebridge/internal/usage"
	"codebridge/pkg/contracts/domain"
)

// UsageHandler serves the usage metering endpoint.
type UsageHandler struct {
	limiter  *usage.Limiter
	logger   *slog.Logger
	validate *validator.Validate
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(limiter *usage.Limiter, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		limiter:  limiter,
		logger:   logger.With(slog.String("handler", "usage")),
		validate: validator.New(),
	}
}

// Routes returns a chi router for usage endpoints.
func (h *UsageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Post("/check", h.Check)

	return r
}

// Check handles POST /api/usage/check. Denials, including downgrade and
// expiry signals, are 200 responses; the limiter absorbs store trouble
// itself (fail-open free, fail-closed pro), so this endpoint has no
// store-fault path.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("usage-handler").Start(r.Context(), "usage.check")
	defer span.End()

	var req domain.UsageCheckRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, validationError(err))
		return
	}

	tier := license.TierFree
	if req.Tier == string(license.TierPro) {
		tier = license.TierPro
	}

	decision := h.limiter.CheckAndConsume(ctx, req.UserID, tier, req.LicenseKey)
	span.SetAttributes(
		attribute.Bool("usage.can_use", decision.CanUse),
		attribute.Bool("usage.downgraded", decision.Downgraded),
	)

	render.JSON(w, r, domain.UsageCheckResponse{
		CanUse:     decision.CanUse,
		Usage:      decision.Usage,
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		Downgraded: decision.Downgraded,
		Expired:    decision.Expired,
	})
}
