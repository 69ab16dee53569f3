package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebridge/internal/license"
	"codebridge/internal/store"
	"codebridge/internal/usage"
	"codebridge/pkg/contracts/domain"
)

type testServer struct {
	router    chi.Router
	issuer    *license.Issuer
	validator *license.Validator
	mem       *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := store.NewMemoryStore()
	issuer, err := license.NewIssuer(mem, "test-secret", logger)
	require.NoError(t, err)
	validator := license.NewValidator(mem, 5, logger)
	limiter := usage.NewLimiter(mem, validator, 3, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", NewLicenseHandler(issuer, validator, logger).Routes())
		r.Mount("/usage", NewUsageHandler(limiter, logger).Routes())
		r.Get("/health", NewHealthHandler(mem, logger).HealthCheck)
	})

	return &testServer{router: r, issuer: issuer, validator: validator, mem: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestActivateIssuesKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/license/activate", domain.ActivateRequest{
		Email:     "buyer@example.com",
		PaymentID: "pay_h1",
		Plan:      "lifetime",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.ActivateResponse
	decodeInto(t, rec, &resp)
	assert.True(t, license.ValidKeyFormat(resp.LicenseKey))
	assert.False(t, resp.AlreadyIssued)
	assert.Equal(t, license.LifetimeExpiry.Unix(), resp.ExpiresAt.Unix())
}

func TestActivateReplayReturnsSameKey(t *testing.T) {
	s := newTestServer(t)
	req := domain.ActivateRequest{Email: "buyer@example.com", PaymentID: "pay_h2"}

	var first, second domain.ActivateResponse
	decodeInto(t, s.do(t, http.MethodPost, "/api/license/activate", req), &first)

	rec := s.do(t, http.MethodPost, "/api/license/activate", req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &second)

	assert.Equal(t, first.LicenseKey, second.LicenseKey)
	assert.True(t, second.AlreadyIssued)
}

func TestActivateValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  domain.ActivateRequest
	}{
		{"missing email", domain.ActivateRequest{PaymentID: "pay_x"}},
		{"bad email", domain.ActivateRequest{Email: "not-an-email", PaymentID: "pay_x"}},
		{"missing payment", domain.ActivateRequest{Email: "a@b.com"}},
		{"unknown plan", domain.ActivateRequest{Email: "a@b.com", PaymentID: "pay_x", Plan: "weekly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/license/activate", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestActivateMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/license/activate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateStoreOutageIsProblemDocument(t *testing.T) {
	s := newTestServer(t)
	s.mem.SetFailing(true)

	rec := s.do(t, http.MethodPost, "/api/license/activate", domain.ActivateRequest{
		Email:     "buyer@example.com",
		PaymentID: "pay_h3",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestClaimIsIdempotentPerSession(t *testing.T) {
	s := newTestServer(t)
	url := "/api/license/claim?session_id=cs_h1&email=buyer%40example.com&plan=lifetime"

	var first, second domain.ClaimResponse
	rec := s.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeInto(t, rec, &first)

	rec = s.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &second)

	assert.Equal(t, first.LicenseKey, second.LicenseKey)
	assert.Equal(t, "buyer@example.com", first.Email)
}

func TestClaimRequiresSessionAndEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/license/claim?email=a%40b.com", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/license/claim?session_id=cs_x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyValidKey(t *testing.T) {
	s := newTestServer(t)
	issued, err := s.issuer.Issue(context.Background(), "buyer@example.com", "pay_h4", license.PlanMonthly)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/license/verify", domain.VerifyRequest{LicenseKey: issued.Key})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.VerifyResponse
	decodeInto(t, rec, &resp)
	assert.True(t, resp.Valid)
	assert.Equal(t, "pro", resp.Tier)
	assert.Equal(t, "monthly", resp.Plan)
	require.NotNil(t, resp.ExpiresAt)
	s.validator.Flush()
}

func TestVerifyNegativesAreOK200(t *testing.T) {
	s := newTestServer(t)

	issued, err := s.issuer.Issue(context.Background(), "buyer@example.com", "pay_h5", license.PlanMonthly)
	require.NoError(t, err)
	require.NoError(t, s.issuer.Revoke(context.Background(), issued.Key))

	tests := []struct {
		name   string
		key    string
		reason string
	}{
		{"malformed", "garbage", "invalid format"},
		{"unknown", "CB-000000000000000000000000", "license not found"},
		{"revoked", issued.Key, "license revoked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/license/verify", domain.VerifyRequest{LicenseKey: tt.key})
			require.Equal(t, http.StatusOK, rec.Code)

			var resp domain.VerifyResponse
			decodeInto(t, rec, &resp)
			assert.False(t, resp.Valid)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
	s.validator.Flush()
}

func TestVerifyStoreOutageIsProblemDocument(t *testing.T) {
	s := newTestServer(t)
	issued, err := s.issuer.Issue(context.Background(), "buyer@example.com", "pay_h6", license.PlanMonthly)
	require.NoError(t, err)

	s.mem.SetFailing(true)
	rec := s.do(t, http.MethodPost, "/api/license/verify", domain.VerifyRequest{LicenseKey: issued.Key})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.HealthResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Store)

	s.mem.SetFailing(true)
	rec = s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
