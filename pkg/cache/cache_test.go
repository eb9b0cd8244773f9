package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bar struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

func newTestCache(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	in := []bar{{"AAPL", 190.5}, {"AAPL", 191}}
	require.NoError(t, mc.Set(ctx, "bars:AAPL", in, time.Minute))

	var out []bar
	require.NoError(t, mc.Get(ctx, "bars:AAPL", &out))
	assert.Equal(t, in, out)

	var s string
	require.NoError(t, mc.Set(ctx, "plain", "hello", 0))
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "hello", s)

	assert.ErrorIs(t, mc.Get(ctx, "nope", &s), ErrCacheMiss)
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	ok, err := mc.TryLock(ctx, "lock:AAPL", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock:AAPL", time.Minute)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:AAPL"))
	ok, _ = mc.TryLock(ctx, "lock:AAPL", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	l2 := newTestCache(t)
	lc := NewLayeredCache(l2, time.Minute, WithMemoryCleanup(0))
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "k", bar{"MSFT", 400}, time.Hour))
	var out bar
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "MSFT", out.Symbol)
	assert.Equal(t, 1, lc.l1.Len())

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "bars:AAPL:2024-01-01", GenerateKey("bars", "AAPL", "2024-01-01"))
	assert.Equal(t, "jobs", GenerateKey("jobs"))
}
