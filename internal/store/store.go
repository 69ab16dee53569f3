package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist. Callers must
// distinguish it from infrastructure failures: a missing key is an
// authoritative answer, any other error means "we don't know".
var ErrNotFound = errors.New("store: key not found")

// Store is the single source of truth for license and usage state.
//
// All mutations used by this subsystem are confined to a single key and
// rely on the store's own atomicity (INCR, SADD), so implementations need
// no additional locking and callers need no transactions.
type Store interface {
	// Get returns the raw value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value at key, unconditionally.
	Set(ctx context.Context, key, value string) error

	// Incr atomically increments the integer counter at key, creating it
	// at zero first if absent, and returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL for key. Setting it repeatedly is harmless; the
	// usage limiter relies on that to avoid a first-increment race.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SCard returns the cardinality of the set at key (0 if absent).
	SCard(ctx context.Context, key string) (int64, error)
}
