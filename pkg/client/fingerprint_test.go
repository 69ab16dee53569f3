package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStableAndOpaque(t *testing.T) {
	fp := NewFingerprinter()

	first := fp.Fingerprint()
	second := fp.Fingerprint()

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "hex-encoded sha-256")

	// A fresh instance on the same machine derives the same value.
	assert.Equal(t, first, NewFingerprinter().Fingerprint())
}
