package http

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "codebridge/internal/errors"
)

// validationError converts a validator.ValidationErrors into the API's
// field-level error shape, falling back to a generic validation failure.
func validationError(err error) *apperrors.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return apperrors.FieldValidation(first.Field(), "failed on '"+first.Tag()+"' validation")
	}
	return apperrors.ErrValidationFailed
}

// storeProblem builds the RFC 7807 document for store outages: 503 so
// clients can tell "we don't know" from an authoritative negative.
func storeProblem(r *http.Request, err error) *apperrors.ProblemDetails {
	pd := apperrors.NewProblemDetails(
		http.StatusServiceUnavailable,
		"/problems/store-unavailable",
		"Backing store unavailable",
		"the request could not be answered authoritatively; retry later",
		r.URL.Path,
	)
	if err != nil {
		pd = pd.WithExtension("retryable", true)
	}
	return pd
}

// internalProblem builds the generic 500 problem document.
func internalProblem(r *http.Request) *apperrors.ProblemDetails {
	return apperrors.NewProblemDetails(
		http.StatusInternalServerError,
		"/problems/internal",
		"Internal server error",
		"",
		r.URL.Path,
	)
}

// clientIP extracts the caller's address, honoring X-Forwarded-For when a
// proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
