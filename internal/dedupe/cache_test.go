package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(capacity int, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(capacity, ttl)
	c.now = clock.now
	return c, clock
}

func TestCacheSeenDuplicate(t *testing.T) {
	cache, _ := newTestCache(10, time.Minute)
	require.False(t, cache.IsSeen("evt-1"))
	cache.MarkSeen("evt-1")
	require.True(t, cache.IsSeen("evt-1"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, clock := newTestCache(10, 20*time.Millisecond)
	cache.MarkSeen("evt-2")
	clock.advance(25 * time.Millisecond)
	require.False(t, cache.IsSeen("evt-2"))

	cache.MarkSeen("evt-3")
	require.Equal(t, 1, cache.Len())
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache, clock := newTestCache(1, time.Minute)
	cache.MarkSeen("first")
	clock.advance(time.Millisecond)
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheRemarkKeepsNewest(t *testing.T) {
	cache, clock := newTestCache(2, time.Minute)
	cache.MarkSeen("a")
	clock.advance(time.Millisecond)
	cache.MarkSeen("b")
	clock.advance(time.Millisecond)
	cache.MarkSeen("a")

	require.True(t, cache.IsSeen("a"))
	require.True(t, cache.IsSeen("b"))
}

func TestNewCacheDefaults(t *testing.T) {
	cache := NewCache(0, 0)
	require.Equal(t, 1, cache.capacity)
	require.Equal(t, time.Hour, cache.ttl)
}
