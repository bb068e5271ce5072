// Package catalog is the query orchestrator: it owns the per-(library, kind)
// media snapshots, serves filtered and sorted views without re-fetching on
// every query, and performs the two-phase parent/child expansion that
// hierarchical (show) libraries need. It is the only component with genuinely
// shared mutable state; everything it hands out is a value.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"teleloop/work/cache"
	"teleloop/work/config"
	"teleloop/work/logger"
	"teleloop/work/metrics"
	"teleloop/work/store"
	"teleloop/work/types"
)

// Fetcher is the external media-fetch collaborator the orchestrator depends
// on. Re-fetch is assumed idempotent; pagination is the fetcher's concern.
type Fetcher interface {
	FetchItems(ctx context.Context, library types.LibraryRef, kind types.MediaKind) ([]types.MediaItem, error)
	FetchEpisodes(ctx context.Context, library types.LibraryRef, seriesID string) ([]types.MediaItem, error)
}

// fetchState is the per-key in-flight marker. A request arriving while a
// fetch for the same key is running waits on done instead of issuing its
// own; the owner records the outcome before closing the channel.
type fetchState struct {
	done chan struct{}
	err  error
}

// Orchestrator coordinates the three snapshot layers (memory, disk, network)
// and the background refresh machinery. Reads and writes for one key are
// serialized through the in-flight marker; different keys proceed fully in
// parallel.
type Orchestrator struct {
	cfg         *config.Config
	fetcher     Fetcher
	memory      *cache.Cache
	disk        *store.Store // optional persisted layer, nil disables it
	inflight    *xsync.MapOf[string, *fetchState]
	lastRefresh *xsync.MapOf[string, time.Time] // per-key refresh throttle stamps
	pool        *ants.Pool
}

// New wires an orchestrator from its dependencies. The disk store may be nil
// when persistence is disabled; the worker pool is shared with the rest of
// the application.
func New(cfg *config.Config, fetcher Fetcher, memory *cache.Cache, disk *store.Store, pool *ants.Pool) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		fetcher:     fetcher,
		memory:      memory,
		disk:        disk,
		inflight:    xsync.NewMapOf[string, *fetchState](),
		lastRefresh: xsync.NewMapOf[string, time.Time](),
		pool:        pool,
	}
}

// snapshotKey builds the cache key for a (library, kind) pair.
func snapshotKey(library types.LibraryRef, kind types.MediaKind) string {
	return library.Key + "|" + string(kind)
}

// episodesKey builds the cache key for one show's episode set.
func episodesKey(library types.LibraryRef, seriesID string) string {
	return library.Key + "|episodes|" + seriesID
}

// Snapshot returns the item set for a (library, kind) pair, consulting
// memory, then the persisted layer, then the network. A stale hit is served
// immediately with a background refresh scheduled; only a complete miss
// blocks on a fetch.
func (o *Orchestrator) Snapshot(ctx context.Context, library types.LibraryRef, kind types.MediaKind) ([]types.MediaItem, error) {
	key := snapshotKey(library, kind)
	return o.acquire(ctx, key, func(fetchCtx context.Context) ([]types.MediaItem, error) {
		return o.fetcher.FetchItems(fetchCtx, library, kind)
	})
}

// Episodes returns the episode set of one show, cached under its own key so
// two-phase filtering only ever fetches episodes for surviving parents.
func (o *Orchestrator) Episodes(ctx context.Context, library types.LibraryRef, seriesID string) ([]types.MediaItem, error) {
	key := episodesKey(library, seriesID)
	return o.acquire(ctx, key, func(fetchCtx context.Context) ([]types.MediaItem, error) {
		return o.fetcher.FetchEpisodes(fetchCtx, library, seriesID)
	})
}

// acquire implements the layered read path for one key.
func (o *Orchestrator) acquire(ctx context.Context, key string, fetch func(context.Context) ([]types.MediaItem, error)) ([]types.MediaItem, error) {
	// Layer 1: memory. Stale entries are served as-is with a refresh queued.
	if snap, ok := o.memory.Get(key); ok {
		metrics.SnapshotLookups.WithLabelValues("memory").Inc()
		if o.memory.Stale(snap) {
			o.scheduleRefresh(key, fetch)
		}
		return snap.Items, nil
	}

	// Layer 2: persisted store, hydrating memory on a hit. The original
	// fetch timestamp is preserved so staleness is judged correctly.
	if o.disk != nil {
		env, ok, err := o.disk.Load(key)
		if err != nil {
			logger.Warn("{catalog/catalog - acquire} Persisted snapshot %s unreadable: %v", key, err)
		} else if ok {
			metrics.SnapshotLookups.WithLabelValues("disk").Inc()
			o.memory.SetAt(key, env.Items, env.FetchedAt)
			if o.memory.Stale(cache.Snapshot{Items: env.Items, FetchedAt: env.FetchedAt}) {
				o.scheduleRefresh(key, fetch)
			}
			return env.Items, nil
		}
	}

	// Layer 3: network, guarded by the in-flight marker.
	metrics.SnapshotLookups.WithLabelValues("fetch").Inc()
	return o.fetchThrough(ctx, key, fetch)
}

// fetchThrough performs (or waits for) the network fetch for a key. Exactly
// one caller owns the fetch; everyone else blocks on the marker until the
// owner finishes, then reads the freshly populated memory layer.
func (o *Orchestrator) fetchThrough(ctx context.Context, key string, fetch func(context.Context) ([]types.MediaItem, error)) ([]types.MediaItem, error) {
	state := &fetchState{done: make(chan struct{})}
	actual, loaded := o.inflight.LoadOrStore(key, state)
	if loaded {
		// Another caller's fetch is in flight; wait for it rather than
		// issuing our own.
		logger.Debug("{catalog/catalog - fetchThrough} Fetch for %s already in flight, waiting", key)
		select {
		case <-actual.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.SnapshotWait):
			return nil, types.NewError(types.ErrTimeout, "timed out waiting for in-flight fetch of %s", key)
		}
		if actual.err != nil {
			return nil, actual.err
		}
		snap, ok := o.memory.Get(key)
		if !ok {
			return nil, types.NewError(types.ErrBadResponse, "in-flight fetch of %s completed without a snapshot", key)
		}
		return snap.Items, nil
	}

	items, err := o.fetchAndStore(ctx, key, fetch)

	state.err = err
	close(state.done)
	o.inflight.Delete(key)
	return items, err
}

// fetchAndStore runs the fetch, merges the result with any previous
// snapshot, and populates both cache layers.
func (o *Orchestrator) fetchAndStore(ctx context.Context, key string, fetch func(context.Context) ([]types.MediaItem, error)) ([]types.MediaItem, error) {
	items, err := fetch(ctx)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(string(types.KindOf(err))).Inc()
		return nil, err
	}

	if prev, ok := o.memory.Get(key); ok {
		items = Merge(prev.Items, items)
	}

	fetchedAt := time.Now()
	o.memory.SetAt(key, items, fetchedAt)
	if o.disk != nil {
		if err := o.disk.Save(key, items, fetchedAt); err != nil {
			logger.Warn("{catalog/catalog - fetchAndStore} Failed to persist snapshot %s: %v", key, err)
		}
	}
	logger.Debug("{catalog/catalog - fetchAndStore} Snapshot %s refreshed with %d items", key, len(items))
	return items, nil
}

// scheduleRefresh queues a background re-fetch for a stale key, throttled so
// repeated accesses within one TTL interval trigger at most one refresh.
func (o *Orchestrator) scheduleRefresh(key string, fetch func(context.Context) ([]types.MediaItem, error)) {
	now := time.Now()
	throttled := false
	o.lastRefresh.Compute(key, func(last time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Sub(last) < o.cfg.SnapshotTTL {
			throttled = true
			return last, false
		}
		return now, false
	})
	if throttled {
		return
	}

	err := o.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if _, err := o.fetchThrough(ctx, key, fetch); err != nil {
			logger.Warn("{catalog/catalog - scheduleRefresh} Background refresh of %s failed: %v", key, err)
		}
	})
	if err != nil {
		logger.Warn("{catalog/catalog - scheduleRefresh} Could not queue refresh for %s: %v", key, err)
	}
}

// Invalidate drops a (library, kind) snapshot from both layers, forcing the
// next read through to the network.
func (o *Orchestrator) Invalidate(library types.LibraryRef, kind types.MediaKind) error {
	key := snapshotKey(library, kind)
	o.memory.Delete(key)
	o.lastRefresh.Delete(key)
	if o.disk != nil {
		if err := o.disk.Delete(key); err != nil {
			return fmt.Errorf("failed to drop persisted snapshot %s: %w", key, err)
		}
	}
	return nil
}
