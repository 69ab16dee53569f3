package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Fingerprinter derives a stable, opaque device identifier from local
// machine traits (hostname, primary MAC address, OS). The server uses it
// only for per-license device-set bookkeeping; it never gates access, so
// a weak fallback fingerprint is fine.
type Fingerprinter struct {
	mu     sync.Mutex
	cached string
	expiry time.Time
}

// NewFingerprinter creates a fingerprinter. The derived value is cached
// for an hour since interface enumeration is comparatively costly.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Fingerprint returns the device identifier: a hex-encoded SHA-256 over
// the machine traits.
func (f *Fingerprinter) Fingerprint() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" && time.Now().Before(f.expiry) {
		return f.cached
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	traits := []string{hostname, primaryMAC(), runtime.GOOS, runtime.GOARCH}
	sum := sha256.Sum256([]byte(strings.Join(traits, "|")))

	f.cached = hex.EncodeToString(sum[:])
	f.expiry = time.Now().Add(time.Hour)
	return f.cached
}

// primaryMAC returns the MAC address of the first up, non-loopback
// interface, or "" when none qualifies.
func primaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	// Any interface with a MAC beats an empty fingerprint component.
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}
