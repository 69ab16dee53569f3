// Package client implements the license-aware client session: a cached
// view of the caller's tier that survives restarts, re-verifies the
// license key periodically, and distinguishes "the server said no" from
// "the server could not be reached".
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"codebridge/internal/license"
	"codebridge/pkg/contracts/domain"
)

// State is the session's view of its own tier.
type State string

const (
	// StateFree is the default tier: no key, or a key the server has
	// authoritatively rejected.
	StateFree State = "FREE"
	// StateProVerified means the key was confirmed by the server within
	// the re-verification interval.
	StateProVerified State = "PRO_VERIFIED"
	// StateProUnverified means a key is on file but its last confirmation
	// is stale; pro features stay on while the grace period lasts.
	StateProUnverified State = "PRO_UNVERIFIED"
)

const (
	// reverifyInterval is how long a confirmation stays fresh.
	reverifyInterval = 6 * time.Hour
	// gracePeriod is how long an unreachable server is tolerated before
	// an unverified pro session falls back to free.
	gracePeriod = 24 * time.Hour
)

// Session owns the cached license state for one installation. All
// methods are safe for concurrent use. Superseded re-verifications
// resolve last-write-wins by completion order.
type Session struct {
	api     API
	storage Storage
	fp      *Fingerprinter
	now     func() time.Time

	mu           sync.Mutex
	state        State
	userID       string
	licenseKey   string
	lastVerified time.Time
	expiresAt    time.Time
	lastReason   string

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSession creates a session, loading persisted state and generating
// the anonymous user ID on first run. It performs no network calls.
func NewSession(api API, storage Storage) (*Session, error) {
	s := &Session{
		api:     api,
		storage: storage,
		fp:      NewFingerprinter(),
		now:     time.Now,
		state:   StateFree,
		stop:    make(chan struct{}),
	}

	cached, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	if cached != nil {
		s.userID = cached.UserID
		s.licenseKey = cached.LicenseKey
		if cached.LastVerified != nil {
			s.lastVerified = *cached.LastVerified
		}
		if cached.ExpiresAt != nil {
			s.expiresAt = *cached.ExpiresAt
		}
	}

	// The anonymous ID is generated once and never regenerated while the
	// state file stays readable.
	if s.userID == "" {
		s.userID = uuid.New().String()
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetClock replaces the session's time source. Tests only.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start adopts the persisted tier. A stored key with a fresh confirmation
// resumes PRO_VERIFIED without a network call; a stale one enters
// PRO_UNVERIFIED and re-verifies in the background.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.licenseKey == "" {
		s.state = StateFree
		s.mu.Unlock()
		return
	}
	if s.now().Sub(s.lastVerified) < reverifyInterval {
		s.state = StateProVerified
		s.mu.Unlock()
		return
	}
	s.state = StateProUnverified
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Reverify(ctx)
	}()
}

// Activate verifies key against the server and, on success, stores it
// and enters PRO_VERIFIED. An authoritative rejection leaves the session
// FREE and returns an *ActivationError carrying the server's reason; a
// transport failure leaves the session untouched and returns the error.
func (s *Session) Activate(ctx context.Context, key string) error {
	if !license.ValidKeyFormat(key) {
		return &ActivationError{Reason: "invalid format"}
	}

	resp, err := s.api.VerifyLicense(ctx, key, s.fp.Fingerprint())
	if err != nil {
		return fmt.Errorf("activation: %w", err)
	}
	if !resp.Valid {
		s.mu.Lock()
		s.lastReason = resp.Reason
		s.mu.Unlock()
		return &ActivationError{Reason: resp.Reason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenseKey = key
	s.state = StateProVerified
	s.lastVerified = s.now()
	s.lastReason = ""
	if resp.ExpiresAt != nil {
		s.expiresAt = *resp.ExpiresAt
	}
	return s.persistLocked()
}

// Reverify re-checks the stored key against the server and updates the
// state:
//
//   - confirmed valid: PRO_VERIFIED, timestamp refreshed, persisted
//   - authoritative invalid: FREE immediately, key cleared
//   - transport failure: state kept within the grace period, FREE after
func (s *Session) Reverify(ctx context.Context) {
	s.mu.Lock()
	key := s.licenseKey
	s.mu.Unlock()
	if key == "" {
		return
	}

	resp, err := s.api.VerifyLicense(ctx, key, s.fp.Fingerprint())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.licenseKey != key {
		// The key changed while we were on the wire; this answer is for a
		// key nobody holds anymore.
		return
	}

	if err != nil {
		if s.now().Sub(s.lastVerified) >= gracePeriod {
			s.state = StateFree
			s.lastReason = "verification overdue"
			return
		}
		if s.state == StateProVerified || s.state == StateProUnverified {
			s.state = StateProUnverified
		}
		return
	}

	if !resp.Valid {
		s.clearKeyLocked(resp.Reason)
		_ = s.persistLocked()
		return
	}

	s.state = StateProVerified
	s.lastVerified = s.now()
	s.lastReason = ""
	if resp.ExpiresAt != nil {
		s.expiresAt = *resp.ExpiresAt
	}
	// Persistence trouble does not demote the live session.
	_ = s.persistLocked()
}

// CheckUsage consults the server's limiter before a metered action. A
// downgrade or expiry signal in the response forces FREE regardless of
// the grace period.
func (s *Session) CheckUsage(ctx context.Context) (*domain.UsageCheckResponse, error) {
	s.mu.Lock()
	req := domain.UsageCheckRequest{
		UserID:     s.userID,
		Tier:       s.tierLocked(),
		LicenseKey: s.licenseKey,
	}
	s.mu.Unlock()

	resp, err := s.api.CheckUsage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("usage check: %w", err)
	}

	if resp.Downgraded || resp.Expired {
		s.mu.Lock()
		reason := "license downgraded"
		if resp.Expired {
			reason = "license expired"
		}
		s.clearKeyLocked(reason)
		_ = s.persistLocked()
		s.mu.Unlock()
	}
	return resp, nil
}

// Deactivate clears the stored key and returns the session to FREE.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearKeyLocked("")
	return s.persistLocked()
}

// StartAutoVerify begins periodic background re-verification.
func (s *Session) StartAutoVerify() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(reverifyInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Reverify(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops background re-verification and waits for in-flight work.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// State returns the current tier state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the anonymous installation ID.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// LicenseKey returns the stored key, "" when none is held.
func (s *Session) LicenseKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.licenseKey
}

// LastReason returns the server's reason for the most recent rejection
// or downgrade, "" when none applies.
func (s *Session) LastReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReason
}

func (s *Session) tierLocked() string {
	if s.state == StateProVerified || s.state == StateProUnverified {
		return "pro"
	}
	return "free"
}

func (s *Session) clearKeyLocked(reason string) {
	s.state = StateFree
	s.licenseKey = ""
	s.expiresAt = time.Time{}
	s.lastReason = reason
}

func (s *Session) persistLocked() error {
	state := &CachedState{
		UserID:     s.userID,
		Tier:       s.tierLocked(),
		LicenseKey: s.licenseKey,
	}
	if !s.lastVerified.IsZero() {
		t := s.lastVerified
		state.LastVerified = &t
	}
	if !s.expiresAt.IsZero() {
		t := s.expiresAt
		state.ExpiresAt = &t
	}
	if err := s.storage.Save(state); err != nil {
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// ActivationError is returned when the server authoritatively rejected
// an activation attempt.
type ActivationError struct {
	Reason string
}

func (e *ActivationError) Error() string {
	return "activation rejected: " + e.Reason
}
