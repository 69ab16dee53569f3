package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v"))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return current })

	_, err := s.Incr(ctx, "usage:u1:2026-03-01")
	require.NoError(t, err)
	require.NoError(t, s.Expire(ctx, "usage:u1:2026-03-01", 24*time.Hour))

	// Still alive just before the deadline.
	current = current.Add(23 * time.Hour)
	n, err := s.Incr(ctx, "usage:u1:2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Expire resets the deadline, so advance past the refreshed TTL.
	require.NoError(t, s.Expire(ctx, "usage:u1:2026-03-01", 24*time.Hour))
	current = current.Add(25 * time.Hour)
	n, err = s.Incr(ctx, "usage:u1:2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired counter restarts from zero")
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.SCard(ctx, "devices:CB-X")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.SAdd(ctx, "devices:CB-X", "fp-1"))
	require.NoError(t, s.SAdd(ctx, "devices:CB-X", "fp-2", "fp-2", "fp-3"))

	n, err = s.SCard(ctx, "devices:CB-X")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "set membership deduplicates")
}

func TestMemoryStoreFailing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetFailing(true)

	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound, "backend failure must not look like a missing key")

	_, err = s.Incr(ctx, "k")
	assert.Error(t, err)

	s.SetFailing(false)
	require.NoError(t, s.Set(ctx, "k", "v"))
}
