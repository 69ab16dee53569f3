// Package license implements the server side of the licensing subsystem:
// key format validation, license issuance from completed payments, and
// license verification with revocation, expiry, and abuse bookkeeping.
//
// Keys are opaque identifiers resolved via store lookup; they carry no
// embedded claims and are never self-verifying.
package license
