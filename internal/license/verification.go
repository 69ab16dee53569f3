package license

import (
	"time"
)

// Outcome tags the result of a verification. Each outcome carries only
// the fields relevant to it; see Verification.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeRevoked     Outcome = "revoked"
	OutcomeExpired     Outcome = "expired"
	OutcomeFormatError Outcome = "format_error"
	OutcomeServerError Outcome = "server_error"
)

// Verification is a tagged variant over the possible verification
// results. Authoritative negatives (not found, revoked, expired) are
// ordinary values, not errors; OutcomeServerError is the only case
// representing "we don't know".
type Verification struct {
	outcome   Outcome
	license   *License
	expiresAt time.Time
	err       error
}

// Verified builds the valid outcome carrying the full license record.
func Verified(l *License) Verification {
	return Verification{outcome: OutcomeValid, license: l, expiresAt: l.ExpiresAt}
}

// NotFound builds the unknown-key outcome.
func NotFound() Verification {
	return Verification{outcome: OutcomeNotFound}
}

// Revoked builds the revoked outcome.
func Revoked() Verification {
	return Verification{outcome: OutcomeRevoked}
}

// Expired builds the expired outcome, echoing the expiry so callers can
// display it.
func Expired(expiresAt time.Time) Verification {
	return Verification{outcome: OutcomeExpired, expiresAt: expiresAt}
}

// FormatError builds the malformed-key outcome.
func FormatError() Verification {
	return Verification{outcome: OutcomeFormatError}
}

// ServerError builds the transient-failure outcome wrapping the cause.
func ServerError(err error) Verification {
	return Verification{outcome: OutcomeServerError, err: err}
}

// Outcome returns the variant tag.
func (v Verification) Outcome() Outcome { return v.outcome }

// Valid reports whether the license verified successfully.
func (v Verification) Valid() bool { return v.outcome == OutcomeValid }

// License returns the record for the valid outcome, nil otherwise.
func (v Verification) License() *License { return v.license }

// ExpiresAt returns the expiry for the valid and expired outcomes; zero
// otherwise.
func (v Verification) ExpiresAt() time.Time { return v.expiresAt }

// Err returns the underlying failure for the server-error outcome.
func (v Verification) Err() error { return v.err }

// Reason returns the human-readable reason for negative outcomes, "" for
// the valid one. The strings are part of the wire contract.
func (v Verification) Reason() string {
	switch v.outcome {
	case OutcomeFormatError:
		return "invalid format"
	case OutcomeNotFound:
		return "license not found"
	case OutcomeRevoked:
		return "license revoked"
	case OutcomeExpired:
		return "license expired"
	case OutcomeServerError:
		return "server error"
	default:
		return ""
	}
}
