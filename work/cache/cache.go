// Package cache provides the in-memory layer of the catalog snapshot cache:
// a thread-safe map from (library, kind) keys to fetched item sets with
// their fetch timestamps. Staleness is a property callers ask about rather
// than an eviction policy, because stale snapshots are deliberately served
// while a background refresh runs.
package cache

import (
	"sync"
	"time"

	"teleloop/work/types"
)

// Snapshot is one cached item set together with the instant it was fetched.
type Snapshot struct {
	Items     []types.MediaItem // The fetched item set, in server order
	FetchedAt time.Time         // When the fetch that produced Items completed
}

// Cache is a thread-safe in-memory snapshot store. Entries never expire on
// read; the orchestrator decides what to do with a stale snapshot.
type Cache struct {
	snapshots map[string]Snapshot // keyed by the orchestrator's (library, kind) key
	mu        sync.RWMutex        // Read-write mutex for concurrent safe access
	ttl       time.Duration       // Age beyond which a snapshot counts as stale
}

// NewCache creates an empty snapshot cache with the given staleness
// threshold.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		snapshots: make(map[string]Snapshot),
		ttl:       ttl,
	}
}

// Get returns the cached snapshot for a key. Stale snapshots are returned
// too; use Stale to decide whether a refresh is due.
func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, exists := c.snapshots[key]
	return snap, exists
}

// Set stores a freshly fetched item set under the key, stamped now.
func (c *Cache) Set(key string, items []types.MediaItem) {
	c.SetAt(key, items, time.Now())
}

// SetAt stores an item set with an explicit fetch timestamp. Used when
// hydrating from the persisted layer, where the original fetch time must
// survive so staleness is judged against the real fetch, not the reload.
func (c *Cache) SetAt(key string, items []types.MediaItem, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[key] = Snapshot{
		Items:     items,
		FetchedAt: fetchedAt,
	}
}

// Stale reports whether a snapshot is older than the configured threshold.
func (c *Cache) Stale(snap Snapshot) bool {
	return time.Since(snap.FetchedAt) > c.ttl
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, key)
}

// Len returns the number of cached snapshots, for metrics and tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
