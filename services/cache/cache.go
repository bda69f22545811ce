// Package cache implements the bounded, TTL'd response cache that lets the
// platform answer repeated, semantically-identical questions without
// re-invoking any provider. The cache is process-local and in-memory.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Default sizing, used when configuration leaves the values unset.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = time.Hour
)

// Entry is one cached answer keyed by a normalized-query fingerprint
type Entry struct {
	Fingerprint    string    `json:"fingerprint"`
	Answer         string    `json:"answer"`
	Sources        []string  `json:"sources,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`
}

// Stats reports cache effectiveness counters
type Stats struct {
	Entries       int     `json:"entries"`
	MaxEntries    int     `json:"max_entries"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	TotalRequests uint64  `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
}

// ResponseCache is a bounded FIFO cache with lazy TTL expiry.
// Thread-safe: size-check, eviction, and insert happen inside a single
// critical section so concurrent stores never over-evict.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      *list.List // insertion order, oldest at front
	maxEntries int
	ttl        time.Duration
	hits       uint64
	misses     uint64
	evictions  uint64

	// now is swapped in tests for deterministic TTL checks
	now func() time.Time
}

type cacheEntry struct {
	entry   Entry
	element *list.Element
}

// New creates a ResponseCache with the given capacity and TTL
func New(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Normalize canonicalizes a query: trims leading/trailing whitespace,
// case-folds, and collapses internal whitespace runs to a single space.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Fingerprint returns the deterministic cache key for a normalized query
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached entry for a query, if present and fresh.
// An entry older than the TTL is evicted and reported as a miss even though
// it had not yet been physically purged. An empty or whitespace-only query
// is always a miss and never consults storage.
func (c *ResponseCache) Lookup(query string) (Entry, bool) {
	normalized := Normalize(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if normalized == "" {
		c.misses++
		return Entry{}, false
	}

	key := Fingerprint(normalized)
	ce, exists := c.entries[key]
	if !exists {
		c.misses++
		return Entry{}, false
	}

	if c.now().Sub(ce.entry.CreatedAt) > c.ttl {
		c.removeLocked(key)
		c.evictions++
		c.misses++
		return Entry{}, false
	}

	ce.entry.LastAccessedAt = c.now()
	ce.entry.AccessCount++
	c.hits++

	return ce.entry, true
}

// Store caches an answer for a query. When the cache is at capacity, exactly
// one entry — the oldest by insertion order — is evicted before the insert.
// Storing an empty or whitespace-only query is a no-op.
func (c *ResponseCache) Store(query, answer string, sources []string) {
	normalized := Normalize(query)
	if normalized == "" {
		return
	}
	key := Fingerprint(normalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ce, exists := c.entries[key]; exists {
		// Re-store refreshes the entry and its position in insertion order.
		ce.entry.Answer = answer
		ce.entry.Sources = sources
		ce.entry.CreatedAt = c.now()
		c.order.MoveToBack(ce.element)
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	ce := &cacheEntry{
		entry: Entry{
			Fingerprint: key,
			Answer:      answer,
			Sources:     sources,
			CreatedAt:   c.now(),
		},
	}
	ce.element = c.order.PushBack(key)
	c.entries[key] = ce
}

// Stats returns a snapshot of the cache counters
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Entries:       len(c.entries),
		MaxEntries:    c.maxEntries,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		TotalRequests: total,
		HitRate:       hitRate,
	}
}

// Len returns the number of entries currently held
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry without touching the counters
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
}

// removeLocked removes an entry; the caller holds the lock
func (c *ResponseCache) removeLocked(key string) {
	if ce, exists := c.entries[key]; exists {
		c.order.Remove(ce.element)
		delete(c.entries, key)
	}
}

// evictOldestLocked evicts the oldest-inserted entry; the caller holds the lock
func (c *ResponseCache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.removeLocked(key)
	c.evictions++
}
