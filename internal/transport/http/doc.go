// Package http contains the HTTP transport layer for the license server:
// chi handlers for issuance, verification, usage metering, and health.
//
// Response convention: authoritative negatives (an invalid key, an
// exhausted quota) are ordinary 200 responses so clients can cache them;
// server faults are RFC 7807 problem documents with 5xx status so clients
// know the answer is missing, not negative.
package http
