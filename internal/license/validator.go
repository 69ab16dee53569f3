package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "codebridge/internal/errors"
	"codebridge/internal/store"
)

const (
	failedCounterTTL = 24 * time.Hour
	verifyCounterTTL = 7 * 24 * time.Hour
	sideEffectBudget = 5 * time.Second
)

// Validator answers whether a license key is valid, recording abuse
// signals as a side effect.
type Validator struct {
	store         store.Store
	logger        *slog.Logger
	warnThreshold int64
	now           func() time.Time

	// sideEffects tracks in-flight best-effort recordings so tests and
	// shutdown can wait for them.
	sideEffects sync.WaitGroup
}

// NewValidator creates a validator. warnThreshold is the advisory device
// count above which verifications emit an abuse warning.
func NewValidator(s store.Store, warnThreshold int64, logger *slog.Logger) *Validator {
	return &Validator{
		store:         s,
		logger:        logger.With(slog.String("component", "license_validator")),
		warnThreshold: warnThreshold,
		now:           time.Now,
	}
}

// SetClock replaces the validator's time source. Tests only.
func (v *Validator) SetClock(now func() time.Time) { v.now = now }

// Verify decides the validity of a key. fingerprint and sourceIP are
// optional; they only feed abuse bookkeeping. Safe for concurrent use:
// every mutation is a single-key atomic store operation.
func (v *Validator) Verify(ctx context.Context, key, fingerprint, sourceIP string) Verification {
	tracer := otel.Tracer("license-validator")
	ctx, span := tracer.Start(ctx, "license.verify",
		trace.WithAttributes(attribute.String("license.key_masked", MaskKey(key))),
	)
	defer span.End()

	// Format gate before any store round-trip, so malformed input costs
	// nothing downstream.
	if !ValidKeyFormat(key) {
		span.SetAttributes(attribute.String("license.outcome", string(OutcomeFormatError)))
		verificationsTotal.WithLabelValues(string(OutcomeFormatError)).Inc()
		return FormatError()
	}

	raw, err := v.store.Get(ctx, recordKey(key))
	if errors.Is(err, store.ErrNotFound) {
		v.recordFailedLookup(sourceIP)
		span.SetAttributes(attribute.String("license.outcome", string(OutcomeNotFound)))
		verificationsTotal.WithLabelValues(string(OutcomeNotFound)).Inc()
		return NotFound()
	}
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("license.outcome", string(OutcomeServerError)))
		verificationsTotal.WithLabelValues(string(OutcomeServerError)).Inc()
		v.logger.ErrorContext(ctx, "license lookup failed",
			slog.String("license_key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
		return ServerError(apperrors.StoreUnavailable(err))
	}

	var lic License
	if err := json.Unmarshal([]byte(raw), &lic); err != nil {
		span.RecordError(err)
		verificationsTotal.WithLabelValues(string(OutcomeServerError)).Inc()
		return ServerError(fmt.Errorf("corrupt license record for %s: %w", MaskKey(key), err))
	}

	if lic.Status == StatusRevoked {
		span.SetAttributes(attribute.String("license.outcome", string(OutcomeRevoked)))
		verificationsTotal.WithLabelValues(string(OutcomeRevoked)).Inc()
		return Revoked()
	}

	if lic.Expired(v.now()) {
		span.SetAttributes(attribute.String("license.outcome", string(OutcomeExpired)))
		verificationsTotal.WithLabelValues(string(OutcomeExpired)).Inc()
		return Expired(lic.ExpiresAt)
	}

	v.recordVerified(key, fingerprint)
	span.SetAttributes(attribute.String("license.outcome", string(OutcomeValid)))
	verificationsTotal.WithLabelValues(string(OutcomeValid)).Inc()
	return Verified(&lic)
}

// Flush waits for in-flight best-effort side effects. Used by tests and
// graceful shutdown.
func (v *Validator) Flush() {
	v.sideEffects.Wait()
}

// recordFailedLookup bumps the per-source-address daily failure counter.
// Best effort: the verification result never depends on it and failures
// here are swallowed.
func (v *Validator) recordFailedLookup(sourceIP string) {
	if sourceIP == "" {
		return
	}
	day := DayStamp(v.now())
	v.background(func(ctx context.Context) {
		key := failedCountKey(sourceIP, day)
		if _, err := v.store.Incr(ctx, key); err != nil {
			v.logger.Debug("failed-lookup counter not recorded", slog.String("error", err.Error()))
			return
		}
		if err := v.store.Expire(ctx, key, failedCounterTTL); err != nil {
			v.logger.Debug("failed-lookup counter ttl not set", slog.String("error", err.Error()))
		}
	})
}

// recordVerified bumps the per-key daily verification counter and folds
// the device fingerprint into the key's device set, warning past the
// advisory threshold. Best effort: failures are swallowed and a large
// device set never blocks verification.
func (v *Validator) recordVerified(key, fingerprint string) {
	day := DayStamp(v.now())
	v.background(func(ctx context.Context) {
		counter := verifyCountKey(key, day)
		if _, err := v.store.Incr(ctx, counter); err != nil {
			v.logger.Debug("verification counter not recorded", slog.String("error", err.Error()))
		} else if err := v.store.Expire(ctx, counter, verifyCounterTTL); err != nil {
			v.logger.Debug("verification counter ttl not set", slog.String("error", err.Error()))
		}

		if fingerprint == "" {
			return
		}
		devices := devicesKey(key)
		if err := v.store.SAdd(ctx, devices, fingerprint); err != nil {
			v.logger.Debug("device fingerprint not recorded", slog.String("error", err.Error()))
			return
		}
		count, err := v.store.SCard(ctx, devices)
		if err != nil {
			return
		}
		if count > v.warnThreshold {
			deviceAbuseWarnings.Inc()
			v.logger.Warn("license used on unusually many devices",
				slog.String("license_key", MaskKey(key)),
				slog.Int64("device_count", count),
				slog.Int64("threshold", v.warnThreshold),
			)
		}
	})
}

// background runs fn detached from the request: the caller does not await
// it, and its store errors are logged and swallowed.
func (v *Validator) background(fn func(context.Context)) {
	v.sideEffects.Add(1)
	go func() {
		defer v.sideEffects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectBudget)
		defer cancel()
		fn(ctx)
	}()
}
