package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "codebridge/internal/errors"
	"codebridge/internal/store"
)

// Issuer turns completed payments into license records and
// human-enterable keys.
//
// Issuance is all-or-nothing: the license record is written before any
// index entry, and the first failed write fails the whole call. A caller
// seeing an error must retry the full issuance, never resume it.
type Issuer struct {
	store  store.Store
	secret []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewIssuer creates an issuer. The secret feeds key derivation and must
// not be empty.
func NewIssuer(s store.Store, secret string, logger *slog.Logger) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("license issuer requires a non-empty secret")
	}
	return &Issuer{
		store:  s,
		secret: []byte(secret),
		logger: logger.With(slog.String("component", "license_issuer")),
		now:    time.Now,
	}, nil
}

// SetClock replaces the issuer's time source. Tests only.
func (i *Issuer) SetClock(now func() time.Time) { i.now = now }

// Issued is the successful result of an issuance.
type Issued struct {
	Key       string
	ExpiresAt time.Time
	Replay    bool
}

// Issue mints a pro license for a completed payment. Replayed
// notifications for the same paymentID return the originally issued key.
func (i *Issuer) Issue(ctx context.Context, email, paymentID string, plan Plan) (*Issued, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email", apperrors.ErrMissingField)
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: paymentId", apperrors.ErrMissingField)
	}
	plan, err := normalizePlan(plan)
	if err != nil {
		return nil, err
	}

	// Idempotency guard: a replayed payment notification must not mint a
	// second key.
	if issued, err := i.existing(ctx, paymentKey(paymentID)); err != nil {
		return nil, err
	} else if issued != nil {
		i.logger.InfoContext(ctx, "payment replay, returning existing license",
			slog.String("license_key", MaskKey(issued.Key)),
			slog.String("payment_id", paymentID),
		)
		issuedTotal.WithLabelValues(string(plan), "true").Inc()
		return issued, nil
	}

	nonce := strconv.FormatInt(i.now().UnixNano(), 10)
	return i.mint(ctx, email, paymentID, "", nonce, plan)
}

// IssueForSession is the session-bound issuance variant: the checkout
// collaborator supplies a session identifier which doubles as the
// idempotency key, so re-visiting the claim page returns the same key.
func (i *Issuer) IssueForSession(ctx context.Context, sessionID, email string, plan Plan) (*Issued, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: sessionId", apperrors.ErrMissingField)
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email", apperrors.ErrMissingField)
	}
	plan, err := normalizePlan(plan)
	if err != nil {
		return nil, err
	}

	if issued, err := i.existing(ctx, sessionKey(sessionID)); err != nil {
		return nil, err
	} else if issued != nil {
		issuedTotal.WithLabelValues(string(plan), "true").Inc()
		return issued, nil
	}

	return i.mint(ctx, email, sessionID, sessionID, sessionID, plan)
}

// existing resolves an idempotency mapping to the previously issued key,
// if any, and reloads its expiry from the license record.
func (i *Issuer) existing(ctx context.Context, mappingKey string) (*Issued, error) {
	key, err := i.store.Get(ctx, mappingKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	raw, err := i.store.Get(ctx, recordKey(key))
	if errors.Is(err, store.ErrNotFound) {
		// Mapping without a record should not happen given write ordering;
		// treat it as absent and mint fresh.
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	var lic License
	if err := json.Unmarshal([]byte(raw), &lic); err != nil {
		return nil, fmt.Errorf("corrupt license record for %s: %w", MaskKey(key), err)
	}
	return &Issued{Key: key, ExpiresAt: lic.ExpiresAt, Replay: true}, nil
}

// mint derives the key, writes the record and then the lookup indexes.
func (i *Issuer) mint(ctx context.Context, email, paymentID, sessionID, nonce string, plan Plan) (*Issued, error) {
	now := i.now()
	key := i.deriveKey(email, nonce)
	expiresAt := expiryFor(plan, now)

	lic := License{
		Email:       email,
		Tier:        TierPro,
		Plan:        plan,
		PaymentID:   paymentID,
		SessionID:   sessionID,
		ActivatedAt: now,
		ExpiresAt:   expiresAt,
		Status:      StatusActive,
	}

	raw, err := json.Marshal(lic)
	if err != nil {
		return nil, fmt.Errorf("marshal license: %w", err)
	}

	// Record first, indexes after: a crash between the writes leaves an
	// unreferenced record, never a dangling index.
	if err := i.store.Set(ctx, recordKey(key), string(raw)); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if err := i.store.Set(ctx, emailKey(email), key); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if err := i.store.Set(ctx, paymentKey(paymentID), key); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if sessionID != "" {
		if err := i.store.Set(ctx, sessionKey(sessionID), key); err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
	}

	i.logger.InfoContext(ctx, "license issued",
		slog.String("license_key", MaskKey(key)),
		slog.String("plan", string(plan)),
		slog.Time("expires_at", expiresAt),
	)
	issuedTotal.WithLabelValues(string(plan), "false").Inc()

	return &Issued{Key: key, ExpiresAt: expiresAt}, nil
}

// Revoke flips a license to revoked status. Soft delete only; the record
// and its counters stay behind for the audit trail.
func (i *Issuer) Revoke(ctx context.Context, key string) error {
	if !ValidKeyFormat(key) {
		return apperrors.ErrInvalidLicenseFormat
	}

	raw, err := i.store.Get(ctx, recordKey(key))
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.ErrLicenseNotFound
	}
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}

	var lic License
	if err := json.Unmarshal([]byte(raw), &lic); err != nil {
		return fmt.Errorf("corrupt license record for %s: %w", MaskKey(key), err)
	}

	lic.Status = StatusRevoked
	updated, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("marshal license: %w", err)
	}
	if err := i.store.Set(ctx, recordKey(key), string(updated)); err != nil {
		return apperrors.StoreUnavailable(err)
	}

	i.logger.WarnContext(ctx, "license revoked", slog.String("license_key", MaskKey(key)))
	return nil
}

// KeyForEmail resolves the most recently issued key for an email address.
// The index is last-key-wins; historical keys stay resolvable directly.
func (i *Issuer) KeyForEmail(ctx context.Context, email string) (string, error) {
	key, err := i.store.Get(ctx, emailKey(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", apperrors.ErrLicenseNotFound
	}
	if err != nil {
		return "", apperrors.StoreUnavailable(err)
	}
	return key, nil
}

// deriveKey produces the 24-hex-char suffix from an HMAC over the email
// and a per-issuance nonce. The key is opaque: verification always round-
// trips to the store, so nothing about the derivation is relied upon
// beyond uniqueness.
func (i *Issuer) deriveKey(email, nonce string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	digest := hex.EncodeToString(mac.Sum(nil))
	return KeyPrefix + strings.ToUpper(digest[:KeySuffixLen])
}

func expiryFor(plan Plan, now time.Time) time.Time {
	if plan == PlanLifetime {
		return LifetimeExpiry
	}
	return now.AddDate(1, 0, 0)
}

func normalizePlan(plan Plan) (Plan, error) {
	switch plan {
	case PlanMonthly, PlanLifetime:
		return plan, nil
	case "":
		// Payment notifications without plan metadata default to monthly.
		return PlanMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidPlan, plan)
	}
}
