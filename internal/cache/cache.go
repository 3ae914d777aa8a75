// Package cache provides a generic, TTL- and priority-aware key/value store
// with bounded footprint and optional compressed persistence.
//
// Entries are evicted before insertion whenever a write would exceed the
// configured byte or item bounds, lowest priority and least recently used
// first. Durable-layer failures never surface to callers; the in-memory
// state stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/internal/clock"
	"github.com/nexinvo/offline-core/internal/metrics"
	"github.com/nexinvo/offline-core/internal/storage"
)

// Priority orders entries for eviction; lower priorities are evicted first.
type Priority int8

const (
	// PriorityLow marks entries evicted first under capacity pressure.
	PriorityLow Priority = iota
	// PriorityMedium is the default entry priority.
	PriorityMedium
	// PriorityHigh marks entries retained the longest.
	PriorityHigh
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Config holds the cache bounds. Bounds are enforced after every mutating
// operation: total bytes never exceed MaxTotalBytes and the entry count
// never exceeds MaxItemCount.
type Config struct {
	MaxTotalBytes        int64
	MaxItemCount         int
	DefaultTTL           time.Duration
	CompressionThreshold int
	SweepInterval        time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxTotalBytes:        10 << 20,
		MaxItemCount:         1000,
		DefaultTTL:           5 * time.Minute,
		CompressionThreshold: 10 << 10,
		SweepInterval:        time.Minute,
	}
}

// Stats reports cache footprint and effectiveness counters.
type Stats struct {
	Entries     int
	TotalBytes  int64
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// FetchFunc loads a value from its origin when the cache cannot serve it.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	key          string
	value        V
	encoded      []byte
	createdAt    time.Time
	ttl          time.Duration
	priority     Priority
	size         int64
	accessCount  int64
	lastAccessed time.Time
	seq          uint64
	persisted    bool
}

// live reports whether the entry is within its TTL at the given instant.
func (e *entry[V]) live(now time.Time) bool {
	return now.Sub(e.createdAt) <= e.ttl
}

// Option configures a Cache at construction time.
type Option func(*options)

type options struct {
	clk   clock.Clock
	store *storage.Namespace
}

// WithClock injects the clock used for TTL checks and the sweep ticker.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithStore enables durable persistence through the given namespace.
// Without it the cache is memory-only.
func WithStore(ns *storage.Namespace) Option {
	return func(o *options) { o.store = ns }
}

// SetOption configures a single Set or GetOrFetch call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl      time.Duration
	priority Priority
	persist  bool
	swr      bool
}

// WithTTL overrides the default TTL for this entry.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = d }
}

// WithPriority sets the entry's eviction priority.
func WithPriority(p Priority) SetOption {
	return func(o *setOptions) { o.priority = p }
}

// WithPersist writes a durable copy of the entry alongside the in-memory one.
func WithPersist() SetOption {
	return func(o *setOptions) { o.persist = true }
}

// StaleWhileRevalidate makes GetOrFetch return an expired-but-present value
// immediately while the fetch refreshes the entry in the background. Callers
// must tolerate eventually consistent reads under this mode.
func StaleWhileRevalidate() SetOption {
	return func(o *setOptions) { o.swr = true }
}

// Cache is a string-keyed, typed cache. All operations on the in-memory
// structure are serialized by a single mutex, so a key's history is
// linearizable and no operation observes a torn intermediate state.
type Cache[V any] struct {
	mu    sync.Mutex
	cfg   Config
	clk   clock.Clock
	store *storage.Namespace

	entries    map[string]*entry[V]
	totalBytes int64
	seq        uint64
	refreshing map[string]struct{}

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	ticker    clock.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache with the given bounds.
func New[V any](cfg Config, opts ...Option) *Cache[V] {
	o := options{clk: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		cfg:        cfg,
		clk:        o.clk,
		store:      o.store,
		entries:    make(map[string]*entry[V]),
		refreshing: make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		c.ticker = o.clk.NewTicker(cfg.SweepInterval)
		go c.sweepLoop()
	}
	return c
}

// Set stores a live entry under key, evicting lower-ranked entries first if
// the insertion would exceed the configured bounds. Storage failures on the
// persisted copy are logged and swallowed; Set itself never fails.
func (c *Cache[V]) Set(key string, value V, opts ...SetOption) {
	o := setOptions{ttl: c.cfg.DefaultTTL, priority: PriorityMedium}
	for _, opt := range opts {
		opt(&o)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache set skipped: value not serializable")
		return
	}
	size := int64(len(encoded))
	if size > c.cfg.MaxTotalBytes {
		log.Warn().Str("key", key).Int64("size", size).
			Int64("max_bytes", c.cfg.MaxTotalBytes).
			Msg("Cache set skipped: value exceeds total capacity")
		return
	}

	// The cache keeps its own copy, detached from caller mutations.
	var owned V
	if err := json.Unmarshal(encoded, &owned); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cache set skipped: value not round-trippable")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old, true)
	}
	c.evictForLocked(size, 1)

	now := c.clk.Now()
	c.seq++
	e := &entry[V]{
		key:          key,
		value:        owned,
		encoded:      encoded,
		createdAt:    now,
		ttl:          o.ttl,
		priority:     o.priority,
		size:         size,
		lastAccessed: now,
		seq:          c.seq,
	}
	c.entries[key] = e
	c.totalBytes += size
	c.updateGaugesLocked()
	metrics.RecordCacheOperation("set", "success")

	if o.persist {
		c.persistLocked(e)
	}
}

// Get returns the live value for key. Expired entries are removed on access
// and reported as absent. Never blocks on network I/O.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.RecordCacheOperation("get", "miss")
		return zero, false
	}

	now := c.clk.Now()
	if !e.live(now) {
		c.removeLocked(e, true)
		c.expirations++
		c.misses++
		c.updateGaugesLocked()
		metrics.RecordCacheOperation("get", "expired")
		return zero, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.hits++
	metrics.RecordCacheOperation("get", "hit")
	return e.value, true
}

// GetOrFetch returns the cached value if live, otherwise loads it through
// fetch and stores the result with the given options. With the
// StaleWhileRevalidate option, an expired-but-present value is returned
// immediately and the fetch runs in the background.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V], opts ...SetOption) (V, error) {
	o := setOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		now := c.clk.Now()
		if e.live(now) {
			e.accessCount++
			e.lastAccessed = now
			c.hits++
			value := e.value
			c.mu.Unlock()
			metrics.RecordCacheOperation("get_or_fetch", "hit")
			return value, nil
		}
		if o.swr {
			stale := e.value
			if _, busy := c.refreshing[key]; !busy {
				c.refreshing[key] = struct{}{}
				go c.refresh(key, fetch, opts)
			}
			c.mu.Unlock()
			metrics.RecordCacheOperation("get_or_fetch", "stale")
			return stale, nil
		}
		c.removeLocked(e, true)
		c.expirations++
		c.updateGaugesLocked()
	}
	c.misses++
	c.mu.Unlock()

	metrics.RecordCacheOperation("get_or_fetch", "fetch")
	value, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value, opts...)
	return value, nil
}

// refresh re-fetches a stale entry in the background.
func (c *Cache[V]) refresh(key string, fetch FetchFunc[V], opts []SetOption) {
	defer func() {
		c.mu.Lock()
		delete(c.refreshing, key)
		c.mu.Unlock()
	}()

	value, err := fetch(context.Background())
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Background cache refresh failed")
		return
	}
	c.Set(key, value, opts...)
}

// InvalidatePattern deletes all entries whose key matches the pattern and
// returns how many were removed.
func (c *Cache[V]) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(e, true)
			count++
		}
	}
	if count > 0 {
		c.updateGaugesLocked()
	}
	metrics.RecordCacheOperation("invalidate_pattern", "success")
	return count, nil
}

// Delete removes one entry and its durable copy.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e, true)
		c.updateGaugesLocked()
		metrics.RecordCacheOperation("delete", "success")
	}
}

// Clear removes all entries and their durable copies.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		c.removeLocked(e, true)
	}
	c.updateGaugesLocked()
	metrics.RecordCacheOperation("clear", "success")
}

// Stats returns a snapshot of the cache footprint and counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     len(c.entries),
		TotalBytes:  c.totalBytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Close tears down the sweep ticker. The cache remains usable afterwards
// but no longer sweeps expired entries in the background.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.done)
	})
}

// sweepLoop periodically removes expired entries.
func (c *Cache[V]) sweepLoop() {
	for {
		select {
		case <-c.ticker.C():
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry in one pass.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for _, e := range c.entries {
		if !e.live(now) {
			c.removeLocked(e, true)
			c.expirations++
			removed++
		}
	}
	if removed > 0 {
		c.updateGaugesLocked()
		log.Debug().Int("removed", removed).Msg("Cache sweep removed expired entries")
	}
}

// removeLocked deletes an entry from the in-memory structure and, when
// dropDurable is set, its durable copy as well. Callers hold c.mu.
func (c *Cache[V]) removeLocked(e *entry[V], dropDurable bool) {
	delete(c.entries, e.key)
	c.totalBytes -= e.size
	if dropDurable && e.persisted {
		c.dropPersistedLocked(e.key)
	}
}

func (c *Cache[V]) updateGaugesLocked() {
	metrics.CacheEntries.Set(float64(len(c.entries)))
	metrics.CacheBytes.Set(float64(c.totalBytes))
}
