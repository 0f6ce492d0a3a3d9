package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/tokens"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(maxSize int, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewCache(maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func testProfile(userID string) *models.UserProfile {
	return &models.UserProfile{
		UserInfo: models.UserInfo{UserID: userID, Status: models.StatusActive},
	}
}

func TestKeyFor(t *testing.T) {
	a := KeyFor(tokens.Pair{IDToken: "id-a", AccessToken: "x"})
	b := KeyFor(tokens.Pair{IDToken: "id-a", AccessToken: "y"})
	c := KeyFor(tokens.Pair{IDToken: "id-b"})

	assert.Equal(t, a, b, "the key depends on the identity token only")
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
	assert.NotContains(t, string(a), "id-a")
}

func TestCache_GetSet(t *testing.T) {
	cache, _ := newTestCache(10, 5*time.Minute)
	key := CacheKey("k1")

	p, ok := cache.Get(key)
	assert.False(t, ok)
	assert.Nil(t, p)

	cache.Set(key, testProfile("u1"))
	p, ok = cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserInfo.UserID)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestCache_NilProfileIsAnEntry(t *testing.T) {
	cache, _ := newTestCache(10, time.Minute)
	cache.Set("none", nil)

	p, ok := cache.Get("none")
	assert.True(t, ok)
	assert.Nil(t, p)
}

func TestCache_TTLExpiration(t *testing.T) {
	cache, clock := newTestCache(10, time.Minute)
	cache.Set("k", testProfile("u1"))

	clock.advance(59 * time.Second)
	_, ok := cache.Get("k")
	assert.True(t, ok)

	clock.advance(2 * time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().Size, "expired entries are dropped on read")
}

func TestCache_LRUEviction(t *testing.T) {
	cache, _ := newTestCache(2, time.Minute)
	cache.Set("a", testProfile("a"))
	cache.Set("b", testProfile("b"))

	// touch a so b becomes least recently used
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Set("c", testProfile("c"))

	_, ok = cache.Get("b")
	assert.False(t, ok)
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats().Size)
}

func TestCache_UpdateExisting(t *testing.T) {
	cache, clock := newTestCache(2, time.Minute)
	cache.Set("a", testProfile("old"))
	clock.advance(50 * time.Second)
	cache.Set("a", testProfile("new"))
	clock.advance(50 * time.Second)

	p, ok := cache.Get("a")
	require.True(t, ok, "updating an entry refreshes its TTL")
	assert.Equal(t, "new", p.UserInfo.UserID)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCache_InvalidateAndClear(t *testing.T) {
	cache, _ := newTestCache(10, time.Minute)
	cache.Set("a", testProfile("a"))
	cache.Set("b", testProfile("b"))

	cache.Invalidate("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Stats().Size)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestCache_CleanupExpired(t *testing.T) {
	cache, clock := newTestCache(10, time.Minute)
	cache.Set("a", testProfile("a"))
	clock.advance(30 * time.Second)
	cache.Set("b", testProfile("b"))
	clock.advance(31 * time.Second)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCache_StartCleanupWorkerStops(t *testing.T) {
	cache := NewCache(10, time.Minute)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		cache.StartCleanupWorker(time.Millisecond, stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}
