package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with real TTL semantics. It backs
// unit tests and local development without a Redis server.
//
// The clock is injectable so day-boundary and expiry behavior can be
// tested deterministically.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	sets    map[string]memorySet
	now     func() time.Time
	failing bool
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memorySet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryEntry),
		sets:   make(map[string]memorySet),
		now:    time.Now,
	}
}

// SetClock replaces the store's time source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetFailing makes every operation return storeUnavailableError, simulating
// an unreachable backend for fail-open/fail-closed tests.
func (s *MemoryStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

type storeUnavailableError struct{}

func (storeUnavailableError) Error() string { return "store: backend unavailable" }

func (s *MemoryStore) expired(at time.Time) bool {
	return !at.IsZero() && s.now().After(at)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", storeUnavailableError{}
	}
	entry, ok := s.values[key]
	if !ok || s.expired(entry.expiresAt) {
		delete(s.values, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return storeUnavailableError{}
	}
	s.values[key] = memoryEntry{value: value}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, storeUnavailableError{}
	}
	entry, ok := s.values[key]
	if !ok || s.expired(entry.expiresAt) {
		entry = memoryEntry{value: "0"}
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	s.values[key] = entry
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return storeUnavailableError{}
	}
	deadline := s.now().Add(ttl)
	if entry, ok := s.values[key]; ok {
		entry.expiresAt = deadline
		s.values[key] = entry
	}
	if set, ok := s.sets[key]; ok {
		set.expiresAt = deadline
		s.sets[key] = set
	}
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return storeUnavailableError{}
	}
	set, ok := s.sets[key]
	if !ok || s.expired(set.expiresAt) {
		set = memorySet{members: make(map[string]struct{})}
	}
	for _, m := range members {
		set.members[m] = struct{}{}
	}
	s.sets[key] = set
	return nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, storeUnavailableError{}
	}
	set, ok := s.sets[key]
	if !ok || s.expired(set.expiresAt) {
		delete(s.sets, key)
		return 0, nil
	}
	return int64(len(set.members)), nil
}
