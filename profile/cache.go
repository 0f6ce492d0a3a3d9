package profile

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/tokens"
)

// CacheKey identifies the session a cached profile belongs to. It is derived
// from the identity token so raw tokens never sit in the cache index.
type CacheKey string

// KeyFor returns the cache key of a token pair
func KeyFor(pair tokens.Pair) CacheKey {
	sum := sha256.Sum256([]byte(pair.IDToken))
	return CacheKey(hex.EncodeToString(sum[:]))
}

type cacheEntry struct {
	key        CacheKey
	profile    *models.UserProfile
	insertedAt time.Time
	element    *list.Element
}

// Cache is an in-memory LRU cache with TTL for upstream profiles.
// A nil profile is a valid entry: the upstream answered "no profile".
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// NewCache creates a cache holding at most maxSize profiles for ttl each
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[CacheKey]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) expired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns the cached profile and whether the key was present and fresh
func (c *Cache) Get(key CacheKey) (*models.UserProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || c.expired(entry) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.profile, true
}

// Set stores a profile, evicting the least recently used entry when full
func (c *Cache) Set(key CacheKey, p *models.UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		entry.profile = p
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{key: key, profile: p, insertedAt: c.now()}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
}

// Invalidate removes a specific cache entry
func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(key)
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[CacheKey]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// removeEntry must be called with the lock held
func (c *Cache) removeEntry(key CacheKey) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU must be called with the lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(CacheKey)
	c.lruList.Remove(back)
	delete(c.entries, key)
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []CacheKey
	for key, entry := range c.entries {
		if c.expired(entry) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker periodically drops expired entries until stopCh closes
func (c *Cache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
