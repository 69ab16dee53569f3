package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebridge/internal/store"
)

func newTestValidator(t *testing.T) (*Validator, *Issuer, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	issuer, err := NewIssuer(mem, "test-secret", testLogger())
	require.NoError(t, err)
	return NewValidator(mem, 5, testLogger()), issuer, mem
}

func TestVerifyFormatError(t *testing.T) {
	validator, _, mem := newTestValidator(t)

	for _, key := range []string{"", "garbage", "cb-abcdef", "CB-xyz"} {
		result := validator.Verify(context.Background(), key, "", "")
		assert.Equal(t, OutcomeFormatError, result.Outcome(), "key %q", key)
		assert.False(t, result.Valid())
	}

	// Malformed keys never reach the store, so even a broken store cannot
	// turn them into server errors.
	mem.SetFailing(true)
	result := validator.Verify(context.Background(), "nope", "", "")
	assert.Equal(t, OutcomeFormatError, result.Outcome())
}

func TestVerifyNotFound(t *testing.T) {
	validator, _, _ := newTestValidator(t)

	result := validator.Verify(context.Background(), "CB-000000000000000000000000", "", "")
	assert.Equal(t, OutcomeNotFound, result.Outcome())
	assert.False(t, result.Valid())
	assert.Equal(t, "license not found", result.Reason())
}

func TestVerifyValid(t *testing.T) {
	validator, issuer, _ := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v1", PlanMonthly)
	require.NoError(t, err)

	result := validator.Verify(ctx, issued.Key, "", "")
	validator.Flush()

	assert.Equal(t, OutcomeValid, result.Outcome())
	assert.True(t, result.Valid())
	require.NotNil(t, result.License())
	assert.Equal(t, "user@example.com", result.License().Email)
	assert.Equal(t, issued.ExpiresAt.Unix(), result.ExpiresAt().Unix())
}

func TestVerifyRevoked(t *testing.T) {
	validator, issuer, _ := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v2", PlanMonthly)
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(ctx, issued.Key))

	result := validator.Verify(ctx, issued.Key, "", "")
	assert.Equal(t, OutcomeRevoked, result.Outcome())
	assert.False(t, result.Valid())
	assert.Equal(t, "license revoked", result.Reason())
}

func TestVerifyExpired(t *testing.T) {
	validator, issuer, _ := newTestValidator(t)
	ctx := context.Background()

	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.SetClock(func() time.Time { return issuedAt })
	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v3", PlanMonthly)
	require.NoError(t, err)

	// Revocation status is checked before expiry; jump past the monthly
	// plan's one-year window.
	validator.SetClock(func() time.Time { return issuedAt.AddDate(1, 0, 1) })

	result := validator.Verify(ctx, issued.Key, "", "")
	assert.Equal(t, OutcomeExpired, result.Outcome())
	assert.False(t, result.Valid())
	assert.Equal(t, issued.ExpiresAt.Unix(), result.ExpiresAt().Unix())
}

func TestVerifyLifetimeNeverExpires(t *testing.T) {
	validator, issuer, _ := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v4", PlanLifetime)
	require.NoError(t, err)

	validator.SetClock(func() time.Time { return time.Date(2090, 1, 1, 0, 0, 0, 0, time.UTC) })
	result := validator.Verify(ctx, issued.Key, "", "")
	validator.Flush()
	assert.Equal(t, OutcomeValid, result.Outcome())
}

func TestVerifyServerErrorIsNotANegative(t *testing.T) {
	validator, issuer, mem := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v5", PlanMonthly)
	require.NoError(t, err)

	mem.SetFailing(true)
	result := validator.Verify(ctx, issued.Key, "", "")

	assert.Equal(t, OutcomeServerError, result.Outcome())
	assert.False(t, result.Valid())
	assert.Error(t, result.Err())

	// The store recovers and the same key verifies again: a fault never
	// demotes the license itself.
	mem.SetFailing(false)
	result = validator.Verify(ctx, issued.Key, "", "")
	validator.Flush()
	assert.Equal(t, OutcomeValid, result.Outcome())
}

func TestVerifyRecordsVerificationCounter(t *testing.T) {
	validator, issuer, mem := newTestValidator(t)
	ctx := context.Background()

	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	validator.SetClock(func() time.Time { return now })

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v6", PlanMonthly)
	require.NoError(t, err)

	validator.Verify(ctx, issued.Key, "", "")
	validator.Verify(ctx, issued.Key, "", "")
	validator.Flush()

	raw, err := mem.Get(ctx, verifyCountKey(issued.Key, "2026-04-10"))
	require.NoError(t, err)
	assert.Equal(t, "2", raw)
}

func TestVerifyRecordsDeviceFingerprints(t *testing.T) {
	validator, issuer, mem := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v7", PlanMonthly)
	require.NoError(t, err)

	validator.Verify(ctx, issued.Key, "device-a", "")
	validator.Verify(ctx, issued.Key, "device-b", "")
	validator.Verify(ctx, issued.Key, "device-a", "")
	validator.Flush()

	count, err := mem.SCard(ctx, devicesKey(issued.Key))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestVerifyDeviceCountPastThresholdStillValid(t *testing.T) {
	mem := store.NewMemoryStore()
	issuer, err := NewIssuer(mem, "test-secret", testLogger())
	require.NoError(t, err)
	validator := NewValidator(mem, 2, testLogger())
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v8", PlanMonthly)
	require.NoError(t, err)

	for _, fp := range []string{"d1", "d2", "d3", "d4"} {
		result := validator.Verify(ctx, issued.Key, fp, "")
		assert.True(t, result.Valid(), "device count is advisory, never blocking")
	}
	validator.Flush()
}

func TestVerifyFailedLookupCounter(t *testing.T) {
	validator, _, mem := newTestValidator(t)
	ctx := context.Background()

	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	validator.SetClock(func() time.Time { return now })

	validator.Verify(ctx, "CB-000000000000000000000000", "", "203.0.113.9")
	validator.Verify(ctx, "CB-111111111111111111111111", "", "203.0.113.9")
	validator.Flush()

	raw, err := mem.Get(ctx, failedCountKey("203.0.113.9", "2026-04-10"))
	require.NoError(t, err)
	assert.Equal(t, "2", raw)
}

func TestVerifyNoSourceIPSkipsFailureCounter(t *testing.T) {
	validator, _, _ := newTestValidator(t)

	result := validator.Verify(context.Background(), "CB-000000000000000000000000", "", "")
	validator.Flush()
	assert.Equal(t, OutcomeNotFound, result.Outcome())
}

func TestVerifyConcurrent(t *testing.T) {
	validator, issuer, _ := newTestValidator(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "user@example.com", "pay_v9", PlanMonthly)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := validator.Verify(ctx, issued.Key, "shared-device", "")
			assert.True(t, result.Valid())
		}()
	}
	wg.Wait()
	validator.Flush()
}
