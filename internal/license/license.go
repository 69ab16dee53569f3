package license

import (
	"time"
)

// Tier is the access level associated with a caller.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Plan is the billing plan a license was purchased under.
type Plan string

const (
	PlanMonthly  Plan = "monthly"
	PlanLifetime Plan = "lifetime"
)

// Status is the lifecycle state of a license record. Records are never
// physically removed; revocation is a status flip so the abuse audit
// trail survives.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Key format: fixed literal prefix + exactly 24 uppercase hex characters.
// This is the one bit-exact wire contract, enforced client- and
// server-side before any store access.
const (
	KeyPrefix    = "CB-"
	KeySuffixLen = 24
	KeyLength    = len(KeyPrefix) + KeySuffixLen // 27
)

// LifetimeExpiry is the far-future sentinel stamped on lifetime licenses.
var LifetimeExpiry = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)

// License is the record stored at license:{key}. Immutable after issuance
// except Status.
type License struct {
	Email       string    `json:"email"`
	Tier        Tier      `json:"tier"`
	Plan        Plan      `json:"plan"`
	PaymentID   string    `json:"paymentId"`
	SessionID   string    `json:"sessionId,omitempty"`
	ActivatedAt time.Time `json:"activatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Status      Status    `json:"status"`
}

// Expired reports whether the license is past its expiry at the given
// instant.
func (l *License) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// ValidKeyFormat reports whether key matches the CB- prefix, the exact
// length, and an all-uppercase-hex suffix. Purely local; no store access.
func ValidKeyFormat(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	if key[:len(KeyPrefix)] != KeyPrefix {
		return false
	}
	for i := len(KeyPrefix); i < len(key); i++ {
		c := key[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// MaskKey masks a license key for logging: CB-1234****CDEF.
func MaskKey(key string) string {
	if len(key) < 11 {
		return "****"
	}
	return key[:7] + "****" + key[len(key)-4:]
}

// Store key builders. The schema is shared with the usage limiter; day
// stamps are UTC calendar days.

func recordKey(key string) string { return "license:" + key }
func emailKey(email string) string { return "email:" + email }
func sessionKey(id string) string { return "session:" + id }
func paymentKey(id string) string { return "payment:" + id }
func devicesKey(key string) string { return "devices:" + key }
func verifyCountKey(key, day string) string { return "verify:" + key + ":" + day }
func failedCountKey(ip, day string) string  { return "failed:" + ip + ":" + day }

// DayStamp formats an instant as a UTC calendar day, the granularity of
// every daily counter in the store.
func DayStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
