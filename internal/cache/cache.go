// Package cache provides a bounded in-memory lookup cache with TTL expiry,
// LRU eviction and periodic snapshots to a SnapshotStore.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
)

const (
	// DefaultTTL is the lifetime of entries stored without an explicit TTL.
	DefaultTTL = time.Hour

	// DefaultMaxEntries bounds the number of entries.
	DefaultMaxEntries = 200

	// DefaultMaxBytes is the soft payload budget.
	DefaultMaxBytes = 8 << 20

	// DefaultSweepInterval is the period of the expiry sweep.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultSnapshotInterval is the period of the persistence snapshot.
	DefaultSnapshotInterval = 10 * time.Minute

	// DefaultSnapshotSize is the number of most recently used entries persisted.
	DefaultSnapshotSize = 100
)

// Config holds the configuration for one cache instance.
type Config struct {
	// Name labels metrics and log lines and keys the snapshot.
	Name string

	DefaultTTL time.Duration
	MaxEntries int
	// MaxBytes is a soft budget over the JSON size of keys and values.
	MaxBytes int64

	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	SnapshotSize     int
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.SnapshotSize <= 0 {
		c.SnapshotSize = DefaultSnapshotSize
	}
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Name        string `json:"name"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Evictions   int64  `json:"evictions"`
	Expirations int64  `json:"expirations"`
	EntryCount  int    `json:"entry_count"`
	ApproxBytes int64  `json:"approx_bytes"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Fetcher computes a value on a cache miss.
type Fetcher[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	domain.CacheEntry[V]
	size int64
}

// Cache is a typed LRU+TTL cache. The zero value is not usable; call New.
type Cache[V any] struct {
	cfg     Config
	store   SnapshotStore
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	lru         *simplelru.LRU[string, *entry[V]]
	bytes       int64
	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	lifecycle sync.Mutex
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a cache. store and metrics may be nil; without a store the
// cache is memory-only.
func New[V any](cfg Config, store SnapshotStore, logger zerolog.Logger, metrics *observability.Metrics) *Cache[V] {
	cfg.applyDefaults()
	c := &Cache[V]{
		cfg:     cfg,
		store:   store,
		logger:  observability.WithCacheContext(observability.Component(logger, "cache"), cfg.Name),
		metrics: metrics,
		now:     time.Now,
	}
	// simplelru reports every removal through the callback, so byte
	// accounting lives there; eviction counting happens at the call sites.
	lru, err := simplelru.NewLRU[string, *entry[V]](cfg.MaxEntries, func(_ string, e *entry[V]) {
		c.bytes -= e.size
	})
	if err != nil {
		// Only returned for a non-positive size, which applyDefaults rules out.
		panic(fmt.Sprintf("cache: %v", err))
	}
	c.lru = lru
	return c
}

// Name returns the configured cache name.
func (c *Cache[V]) Name() string {
	return c.cfg.Name
}

// Key builds the canonical cache key for op and params: op followed by the
// parameters sorted by name and URL-escaped, e.g. "related?id=1&relation=citations".
func Key(op string, params map[string]string) string {
	if len(params) == 0 {
		return op
	}
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	return op + "?" + v.Encode()
}

// Get returns the cached value for op and params, running fetcher on a miss
// and storing its result. A fetcher error is not cached and yields
// (zero, false). Concurrent misses may fetch twice; the last write wins.
func (c *Cache[V]) Get(ctx context.Context, op string, params map[string]string, fetcher Fetcher[V]) (V, bool) {
	key := Key(op, params)
	if v, ok := c.Lookup(key); ok {
		return v, true
	}

	v, err := fetcher(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("fetch not cached")
		var zero V
		return zero, false
	}
	c.Set(key, v, 0)
	return v, true
}

// Lookup returns the live value stored under key. Expired entries are
// removed and reported as misses.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.lru.Get(key)
	if ok && e.Expired(now) {
		c.lru.Remove(key)
		c.expirations++
		c.metrics.RecordCacheExpirations(c.cfg.Name, 1)
		ok = false
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		c.metrics.RecordCacheMiss(c.cfg.Name)
		var zero V
		return zero, false
	}
	e.AccessCount++
	e.LastAccess = now
	v := e.Value
	c.hits++
	c.mu.Unlock()

	c.metrics.RecordCacheHit(c.cfg.Name)
	return v, true
}

// Set stores value under key. ttl <= 0 uses the default TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	now := c.now()
	c.put(&entry[V]{
		CacheEntry: domain.CacheEntry[V]{
			Key:        key,
			Value:      value,
			CreatedAt:  now,
			ExpiresAt:  now.Add(ttl),
			LastAccess: now,
		},
		size: approxSize(key, value),
	})
}

func (c *Cache[V]) put(e *entry[V]) {
	c.mu.Lock()
	if old, ok := c.lru.Peek(e.Key); ok {
		c.bytes -= old.size
	}
	var evicted int64
	if c.lru.Add(e.Key, e) {
		evicted++
	}
	c.bytes += e.size

	// Soft byte budget: drop least recently used entries, but never the one
	// just written.
	for c.bytes > c.cfg.MaxBytes && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
		evicted++
	}
	c.evictions += evicted
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	if evicted > 0 {
		c.metrics.RecordCacheEvictions(c.cfg.Name, int(evicted))
		c.logger.Debug().Int64("evicted", evicted).Msg("evicted least recently used entries")
	}
	c.metrics.SetCacheSize(c.cfg.Name, entries, bytes)
}

// Invalidate removes the entry for op and params and reports whether it existed.
func (c *Cache[V]) Invalidate(op string, params map[string]string) bool {
	c.mu.Lock()
	ok := c.lru.Remove(Key(op, params))
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	c.metrics.SetCacheSize(c.cfg.Name, entries, bytes)
	return ok
}

// InvalidateByPattern removes every entry whose key matches re and returns
// the number removed.
func (c *Cache[V]) InvalidateByPattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	c.mu.Lock()
	var removed int
	for _, k := range c.lru.Keys() {
		if re.MatchString(k) && c.lru.Remove(k) {
			removed++
		}
	}
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	c.metrics.SetCacheSize(c.cfg.Name, entries, bytes)
	return removed
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	var removed int
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && e.Expired(now) {
			c.lru.Remove(k)
			removed++
		}
	}
	c.expirations += int64(removed)
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.RecordCacheExpirations(c.cfg.Name, removed)
		c.logger.Debug().Int("expired", removed).Msg("swept expired entries")
	}
	c.metrics.SetCacheSize(c.cfg.Name, entries, bytes)
	return removed
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Name:        c.cfg.Name,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		EntryCount:  c.lru.Len(),
		ApproxBytes: c.bytes,
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Start loads the persisted snapshot and starts the background sweep and
// snapshot loop. Calling Start again is a no-op.
func (c *Cache[V]) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started {
		return nil
	}

	c.restore(ctx)

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.started = true
	go c.run(c.stop, c.done)

	c.logger.Info().
		Int("entries", c.Len()).
		Dur("sweep_interval", c.cfg.SweepInterval).
		Dur("snapshot_interval", c.cfg.SnapshotInterval).
		Msg("cache started")
	return nil
}

// Shutdown stops the background loop and writes a final snapshot. Snapshot
// failures are logged, never returned; only ctx expiry while waiting for the
// loop is reported.
func (c *Cache[V]) Shutdown(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	close(c.stop)
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.persist(ctx)
	c.logger.Info().Msg("cache stopped")
	return nil
}

func (c *Cache[V]) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	sweep := time.NewTicker(c.cfg.SweepInterval)
	defer sweep.Stop()
	snapshot := time.NewTicker(c.cfg.SnapshotInterval)
	defer snapshot.Stop()

	for {
		select {
		case <-stop:
			return
		case <-sweep.C:
			c.Sweep()
		case <-snapshot.C:
			c.persist(context.Background())
		}
	}
}

// snapshotKey is the store key for this cache's snapshot blob.
func (c *Cache[V]) snapshotKey() string {
	return "cache:" + c.cfg.Name
}

// Snapshot serializes up to SnapshotSize of the most recently used live
// entries, newest first.
func (c *Cache[V]) Snapshot() ([]byte, error) {
	now := c.now()

	c.mu.RLock()
	keys := c.lru.Keys()
	out := make([]domain.CacheEntry[V], 0, min(len(keys), c.cfg.SnapshotSize))
	for i := len(keys) - 1; i >= 0 && len(out) < c.cfg.SnapshotSize; i-- {
		e, ok := c.lru.Peek(keys[i])
		if !ok || e.Expired(now) {
			continue
		}
		out = append(out, e.CacheEntry)
	}
	c.mu.RUnlock()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding snapshot: %v", domain.ErrCacheStorage, err)
	}
	return data, nil
}

// Restore loads entries produced by Snapshot, skipping expired ones, and
// returns the number loaded. Existing entries with the same key are replaced.
func (c *Cache[V]) Restore(data []byte) (int, error) {
	var entries []domain.CacheEntry[V]
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("%w: decoding snapshot: %v", domain.ErrCacheStorage, err)
	}

	now := c.now()
	var loaded int
	// Oldest first so the newest snapshot entry ends up most recently used.
	for i := len(entries) - 1; i >= 0; i-- {
		ce := entries[i]
		if ce.Key == "" || ce.Expired(now) {
			continue
		}
		c.put(&entry[V]{CacheEntry: ce, size: approxSize(ce.Key, ce.Value)})
		loaded++
	}
	return loaded, nil
}

func (c *Cache[V]) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	data, err := c.Snapshot()
	if err != nil {
		c.logger.Warn().Err(err).Msg("snapshot encoding failed")
		return
	}
	if err := c.store.Save(ctx, c.snapshotKey(), data); err != nil {
		c.logger.Warn().Err(err).Msg("snapshot write failed, continuing in memory")
		return
	}
	c.logger.Debug().Int("bytes", len(data)).Msg("snapshot written")
}

func (c *Cache[V]) restore(ctx context.Context) {
	if c.store == nil {
		return
	}
	data, ok, err := c.store.Load(ctx, c.snapshotKey())
	if err != nil {
		c.logger.Warn().Err(err).Msg("snapshot read failed, starting empty")
		return
	}
	if !ok {
		return
	}
	n, err := c.Restore(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("snapshot discarded")
		return
	}
	c.logger.Debug().Int("loaded", n).Msg("snapshot restored")
}

func approxSize[V any](key string, value V) int64 {
	data, err := json.Marshal(value)
	if err != nil {
		return int64(len(key))
	}
	return int64(len(key) + len(data))
}
