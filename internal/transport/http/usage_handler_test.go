package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebridge/internal/license"
	"codebridge/pkg/contracts/domain"
)

func TestUsageCheckFreeQuota(t *testing.T) {
	s := newTestServer(t)
	req := domain.UsageCheckRequest{UserID: "user-1", Tier: "free"}

	for i := int64(1); i <= 3; i++ {
		rec := s.do(t, http.MethodPost, "/api/usage/check", req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp domain.UsageCheckResponse
		decodeInto(t, rec, &resp)
		assert.True(t, resp.CanUse)
		assert.Equal(t, i, resp.Usage)
		assert.Equal(t, int64(3), resp.Limit)
	}

	rec := s.do(t, http.MethodPost, "/api/usage/check", req)
	require.Equal(t, http.StatusOK, rec.Code, "quota exhaustion is an authoritative answer, not a fault")

	var resp domain.UsageCheckResponse
	decodeInto(t, rec, &resp)
	assert.False(t, resp.CanUse)
	assert.Equal(t, int64(3), resp.Usage)
	assert.Equal(t, int64(0), resp.Remaining)
}

func TestUsageCheckProUnlimited(t *testing.T) {
	s := newTestServer(t)
	issued, err := s.issuer.Issue(context.Background(), "pro@example.com", "pay_uh1", license.PlanMonthly)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/usage/check", domain.UsageCheckRequest{
		UserID:     "user-1",
		Tier:       "pro",
		LicenseKey: issued.Key,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.UsageCheckResponse
	decodeInto(t, rec, &resp)
	assert.True(t, resp.CanUse)
	assert.Equal(t, int64(-1), resp.Limit)
	s.validator.Flush()
}

func TestUsageCheckProDowngradeSignal(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/usage/check", domain.UsageCheckRequest{
		UserID:     "user-1",
		Tier:       "pro",
		LicenseKey: "CB-000000000000000000000000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.UsageCheckResponse
	decodeInto(t, rec, &resp)
	assert.False(t, resp.CanUse)
	assert.True(t, resp.Downgraded)
	s.validator.Flush()
}

func TestUsageCheckValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/usage/check", domain.UsageCheckRequest{Tier: "free"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/usage/check", domain.UsageCheckRequest{
		UserID: "user-1",
		Tier:   "platinum",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageCheckFreeFailsOpenOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.mem.SetFailing(true)

	rec := s.do(t, http.MethodPost, "/api/usage/check", domain.UsageCheckRequest{UserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.UsageCheckResponse
	decodeInto(t, rec, &resp)
	assert.True(t, resp.CanUse)
}
