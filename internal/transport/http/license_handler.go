package http

import (
	"errors"
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
	"codebridge/pkg/contracts/domain"
)

// LicenseHandler serves license issuance and verification endpoints.
type LicenseHandler struct {
	issuer    *license.Issuer
	validator *license.Validator
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(issuer *license.Issuer, v *license.Validator, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		issuer:    issuer,
		validator: v,
		logger:    logger.With(slog.String("handler", "license")),
		validate:  validator.New(),
	}
}

// Routes returns a chi router for license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Post("/activate", h.Activate)
	r.Get("/claim", h.Claim)
	r.Post("/verify", h.Verify)

	return r
}

// Activate handles POST /api/license/activate: mint a pro license for a
// completed payment. Replayed payment IDs return the original key.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license.activate")
	defer span.End()

	var req domain.ActivateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, validationError(err))
		return
	}

	issued, err := h.issuer.Issue(ctx, req.Email, req.PaymentID, license.Plan(req.Plan))
	if err != nil {
		h.renderIssueError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Bool("license.replay", issued.Replay))
	h.logger.InfoContext(ctx, "activation served",
		slog.String("license_key", license.MaskKey(issued.Key)),
		slog.Bool("replay", issued.Replay),
	)

	render.JSON(w, r, domain.ActivateResponse{
		LicenseKey:    issued.Key,
		ExpiresAt:     issued.ExpiresAt,
		AlreadyIssued: issued.Replay,
	})
}

// Claim handles GET /api/license/claim: session-bound issuance for the
// post-checkout claim page. Idempotent per session id, so a refresh
// returns the same key.
func (h *LicenseHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license.claim")
	defer span.End()

	sessionID := r.URL.Query().Get("session_id")
	email := r.URL.Query().Get("email")
	plan := r.URL.Query().Get("plan")
	if sessionID == "" {
		render.Render(w, r, apperrors.FieldValidation("session_id", "session_id is required"))
		return
	}
	if email == "" {
		render.Render(w, r, apperrors.FieldValidation("email", "email is required"))
		return
	}

	issued, err := h.issuer.IssueForSession(ctx, sessionID, email, license.Plan(plan))
	if err != nil {
		h.renderIssueError(w, r, err)
		return
	}

	render.JSON(w, r, domain.ClaimResponse{
		LicenseKey: issued.Key,
		Email:      email,
		ExpiresAt:  issued.ExpiresAt,
	})
}

// Verify handles POST /api/license/verify. Authoritative negatives are
// 200 responses with valid=false; only server faults produce problem
// documents.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license.verify")
	defer span.End()

	var req domain.VerifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, validationError(err))
		return
	}

	result := h.validator.Verify(ctx, req.LicenseKey, req.Fingerprint, clientIP(r))
	span.SetAttributes(attribute.String("license.outcome", string(result.Outcome())))

	if result.Outcome() == license.OutcomeServerError {
		render.Render(w, r, storeProblem(r, result.Err()))
		return
	}

	resp := domain.VerifyResponse{Valid: result.Valid(), Reason: result.Reason()}
	if lic := result.License(); lic != nil {
		resp.Tier = string(lic.Tier)
		resp.Plan = string(lic.Plan)
	}
	if expiresAt := result.ExpiresAt(); !expiresAt.IsZero() {
		resp.ExpiresAt = &expiresAt
	}
	render.JSON(w, r, resp)
}

func (h *LicenseHandler) renderIssueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrMissingField), errors.Is(err, apperrors.ErrInvalidPlan):
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		h.logger.ErrorContext(r.Context(), "issuance failed, store unavailable",
			slog.String("error", err.Error()))
		render.Render(w, r, storeProblem(r, err))
	default:
		h.logger.ErrorContext(r.Context(), "issuance failed",
			slog.String("error", err.Error()))
		render.Render(w, r, internalProblem(r))
	}
}
