package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidKeyFormat(t *testing.T) {
	valid := "CB-" + strings.Repeat("A1", 12)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"well-formed", valid, true},
		{"all digits", "CB-012345678901234567890123", true},
		{"all hex letters", "CB-ABCDEFABCDEFABCDEFABCDEF", true},
		{"empty", "", false},
		{"missing prefix", "XX-" + strings.Repeat("A1", 12), false},
		{"lowercase hex", "CB-" + strings.Repeat("a1", 12), false},
		{"non-hex letter", "CB-" + strings.Repeat("G1", 12), false},
		{"too short", "CB-ABC123", false},
		{"too long", valid + "F", false},
		{"prefix only", "CB-", false},
		{"whitespace padding", " " + valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKeyFormat(tt.key))
		})
	}
}

func TestKeyLengthContract(t *testing.T) {
	// The 27-character total is a wire contract shared with clients.
	assert.Equal(t, 27, KeyLength)
}

func TestMaskKey(t *testing.T) {
	masked := MaskKey("CB-0123456789ABCDEF01234567")
	assert.Equal(t, "CB-0123****4567", masked)
	assert.NotContains(t, masked, "456789ABCDEF")

	assert.Equal(t, "****", MaskKey("short"))
}

func TestLicenseExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	lic := &License{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, lic.Expired(now))
	assert.True(t, lic.Expired(now.Add(2*time.Hour)))
	assert.False(t, lic.Expired(lic.ExpiresAt), "expiry instant itself is not yet expired")
}

func TestDayStamp(t *testing.T) {
	// 23:30 in UTC+2 is the previous calendar day in UTC; counters key on
	// UTC days.
	loc := time.FixedZone("UTC+2", 2*3600)
	at := time.Date(2026, 3, 1, 0, 30, 0, 0, loc)
	assert.Equal(t, "2026-02-28", DayStamp(at))
}
