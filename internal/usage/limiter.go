// Package usage meters free-tier actions against a daily quota and
// waves through verified pro licenses.
package usage

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"codebridge/internal/license"
	"codebridge/internal/store"
)

const (
	// UnlimitedLimit is the sentinel limit reported for verified pro
	// callers.
	UnlimitedLimit = -1

	freeCounterTTL = 24 * time.Hour
	proCounterTTL  = 30 * 24 * time.Hour
)

// Decision is the limiter's answer for one prospective action.
type Decision struct {
	CanUse    bool
	Usage     int64
	Limit     int64
	Remaining int64

	// Downgraded is set when a pro claim failed verification (unknown or
	// revoked key): the caller should drop to the free tier.
	Downgraded bool
	// Expired is set when the pro claim's license has lapsed.
	Expired bool
}

// Verifier is the slice of the license validator the limiter needs.
type Verifier interface {
	Verify(ctx context.Context, key, fingerprint, sourceIP string) license.Verification
}

// Limiter decides whether a caller may perform a metered action.
//
// The two tiers fail in opposite directions on store trouble: a free
// caller is let through (losing a quota tick is acceptable, losing the
// product is not), while a pro claim is denied (an unverifiable paid
// entitlement must not be honored on trust).
type Limiter struct {
	store      store.Store
	verifier   Verifier
	dailyLimit int64
	logger     *slog.Logger
	now        func() time.Time
}

// NewLimiter creates a limiter enforcing dailyLimit free actions per
// caller per UTC day.
func NewLimiter(s store.Store, verifier Verifier, dailyLimit int64, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:      s,
		verifier:   verifier,
		dailyLimit: dailyLimit,
		logger:     logger.With(slog.String("component", "usage_limiter")),
		now:        time.Now,
	}
}

// SetClock replaces the limiter's time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// CheckAndConsume admits or denies one action, consuming a quota slot
// when it admits a free caller. Pro claims carrying a licenseKey are
// re-verified inline against the store on every call.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID string, tier license.Tier, licenseKey string) Decision {
	tracer := otel.Tracer("usage-limiter")
	ctx, span := tracer.Start(ctx, "usage.check",
		trace.WithAttributes(attribute.String("usage.tier", string(tier))),
	)
	defer span.End()

	if tier == license.TierPro && licenseKey != "" {
		return l.checkPro(ctx, licenseKey)
	}
	// A pro claim without a key cannot be verified and meters as free.
	return l.checkFree(ctx, userID)
}

func (l *Limiter) checkPro(ctx context.Context, key string) Decision {
	result := l.verifier.Verify(ctx, key, "", "")

	switch result.Outcome() {
	case license.OutcomeValid:
		l.recordProUsage(ctx, key)
		checksTotal.WithLabelValues("pro", "allowed").Inc()
		return Decision{CanUse: true, Limit: UnlimitedLimit, Remaining: UnlimitedLimit}

	case license.OutcomeExpired:
		checksTotal.WithLabelValues("pro", "denied").Inc()
		return Decision{Limit: l.dailyLimit, Expired: true}

	case license.OutcomeServerError:
		// The entitlement could not be re-checked; deny rather than honor
		// a paid claim on trust.
		checksTotal.WithLabelValues("pro", "denied").Inc()
		l.logger.ErrorContext(ctx, "pro re-verification unavailable, denying",
			slog.String("license_key", license.MaskKey(key)),
			slog.String("error", result.Err().Error()),
		)
		return Decision{Limit: l.dailyLimit}

	default:
		// Not found, revoked, or malformed: the claim is bogus and the
		// caller should downgrade.
		checksTotal.WithLabelValues("pro", "denied").Inc()
		return Decision{Limit: l.dailyLimit, Downgraded: true}
	}
}

func (l *Limiter) checkFree(ctx context.Context, userID string) Decision {
	key := usageKey(userID, license.DayStamp(l.now()))

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		// Quota bookkeeping is down. Let the action through: degrading
		// the free product over a counter outage is the worse outcome.
		checksTotal.WithLabelValues("free", "allowed").Inc()
		l.logger.WarnContext(ctx, "quota counter unavailable, failing open",
			slog.String("error", err.Error()),
		)
		return Decision{CanUse: true, Limit: l.dailyLimit, Remaining: l.dailyLimit}
	}
	// Unconditional expire after every incr: idempotent, and it repairs a
	// counter that lost its TTL to a crash between the two calls.
	if err := l.store.Expire(ctx, key, freeCounterTTL); err != nil {
		l.logger.Debug("quota counter ttl not set", slog.String("error", err.Error()))
	}

	canUse := count <= l.dailyLimit
	usage := count
	if usage > l.dailyLimit {
		usage = l.dailyLimit
	}

	if canUse {
		checksTotal.WithLabelValues("free", "allowed").Inc()
	} else {
		checksTotal.WithLabelValues("free", "denied").Inc()
		quotaDenials.Inc()
	}

	return Decision{
		CanUse:    canUse,
		Usage:     usage,
		Limit:     l.dailyLimit,
		Remaining: l.dailyLimit - usage,
	}
}

// recordProUsage bumps the per-key pro usage counter, kept for 30 days
// as an audit trail. Best effort; admission never depends on it.
func (l *Limiter) recordProUsage(ctx context.Context, key string) {
	counter := proUsageKey(key, license.DayStamp(l.now()))
	if _, err := l.store.Incr(ctx, counter); err != nil {
		l.logger.Debug("pro usage counter not recorded", slog.String("error", err.Error()))
		return
	}
	if err := l.store.Expire(ctx, counter, proCounterTTL); err != nil {
		l.logger.Debug("pro usage counter ttl not set", slog.String("error", err.Error()))
	}
}

func usageKey(userID, day string) string { return "usage:" + userID + ":" + day }
func proUsageKey(key, day string) string { return "prousage:" + key + ":" + day }
