// Package domain contains the wire contracts shared between the license
// server and its clients. These types are the single source of truth for
// the JSON shapes on every endpoint.
package domain

import (
	"time"
)

// ActivateRequest asks the server to mint a pro license for a completed
// payment.
type ActivateRequest struct {
	Email     string `json:"email" validate:"required,email"`
	PaymentID string `json:"paymentId" validate:"required"`
	Plan      string `json:"plan" validate:"omitempty,oneof=monthly lifetime"`
}

// ActivateResponse carries the issued (or re-fetched) key.
type ActivateResponse struct {
	LicenseKey string    `json:"licenseKey"`
	ExpiresAt  time.Time `json:"expiresAt"`
	// AlreadyIssued is true when a replayed payment returned the
	// originally minted key instead of a fresh one.
	AlreadyIssued bool `json:"alreadyIssued,omitempty"`
}

// ClaimResponse is returned by the session-bound claim endpoint. Same
// shape as activation; session claims are always idempotent.
type ClaimResponse struct {
	LicenseKey string    `json:"licenseKey"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// VerifyRequest asks whether a license key is currently valid.
// Fingerprint is an optional opaque device identifier used only for
// abuse bookkeeping.
type VerifyRequest struct {
	LicenseKey  string `json:"licenseKey" validate:"required"`
	Fingerprint string `json:"fingerprint,omitempty" validate:"omitempty,max=128"`
}

// VerifyResponse is the authoritative answer for a key. Negative answers
// (valid=false with a reason) are ordinary 200 responses; only server
// faults surface as problem documents.
type VerifyResponse struct {
	Valid     bool       `json:"valid"`
	Tier      string     `json:"tier,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// UsageCheckRequest asks permission for one metered action. Tier is the
// caller's claimed tier; a pro claim must carry the license key so the
// server can re-verify it.
type UsageCheckRequest struct {
	UserID     string `json:"userId" validate:"required,max=64"`
	Tier       string `json:"tier" validate:"omitempty,oneof=free pro"`
	LicenseKey string `json:"licenseKey,omitempty"`
}

// UsageCheckResponse reports the admission decision and remaining quota.
// Limit is -1 for verified pro callers.
type UsageCheckResponse struct {
	CanUse    bool  `json:"canUse"`
	Usage     int64 `json:"usage"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	// Downgraded tells the client its pro claim did not check out and it
	// should fall back to the free tier.
	Downgraded bool `json:"downgraded,omitempty"`
	// Expired tells the client its license has lapsed.
	Expired bool `json:"expired,omitempty"`
}

// HealthResponse is the health endpoint's body.
type HealthResponse struct {
	Status  string    `json:"status"`
	Store   string    `json:"store"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}
