package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexinvo/offline-core/internal/clock"
	"github.com/nexinvo/offline-core/internal/storage"
)

type invoiceView struct {
	Number string `json:"number"`
	Total  int    `json:"total"`
}

func testConfig() Config {
	return Config{
		MaxTotalBytes:        1 << 20,
		MaxItemCount:         100,
		DefaultTTL:           time.Minute,
		CompressionThreshold: 10 << 10,
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := New[invoiceView](testConfig())
	defer c.Close()

	c.Set("invoice:1", invoiceView{Number: "INV-001", Total: 4200}, WithTTL(time.Second))

	got, ok := c.Get("invoice:1")
	require.True(t, ok)
	assert.Equal(t, invoiceView{Number: "INV-001", Total: 4200}, got)
}

func TestCache_ExpiryBoundaries(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	c := New[string](testConfig(), WithClock(clk))
	defer c.Close()

	c.Set("k", "v", WithTTL(1000*time.Millisecond))

	clk.Advance(999 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry must be live just before its TTL elapses")

	clk.Advance(2 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must be absent just after its TTL elapses")

	// The expired entry was evicted on access, not merely hidden.
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestCache_CapacityInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalBytes = 200
	cfg.MaxItemCount = 5
	c := New[string](cfg)
	defer c.Close()

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("key-%d", i), strings.Repeat("x", (i%7)*10))

		stats := c.Stats()
		require.LessOrEqual(t, stats.TotalBytes, cfg.MaxTotalBytes,
			"byte bound violated after set %d", i)
		require.LessOrEqual(t, stats.Entries, cfg.MaxItemCount,
			"item bound violated after set %d", i)
	}
}

func TestCache_EvictionOrder(t *testing.T) {
	t.Run("lower priority evicted before recency", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxItemCount = 2
		clk := clock.NewFake(time.Unix(1700000000, 0))
		c := New[string](cfg, WithClock(clk))
		defer c.Close()

		c.Set("a", "1", WithPriority(PriorityLow))
		clk.Advance(time.Second)
		c.Set("b", "2", WithPriority(PriorityHigh))
		clk.Advance(time.Second)
		c.Get("a")
		c.Get("b")
		clk.Advance(time.Second)

		// Forcing one eviction must remove the low-priority entry even
		// though both were accessed equally recently.
		c.Set("c", "3", WithPriority(PriorityMedium))

		_, okA := c.Get("a")
		_, okB := c.Get("b")
		assert.False(t, okA, "low-priority entry must be evicted first")
		assert.True(t, okB)
	})

	t.Run("least recently used evicted at equal priority", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxItemCount = 2
		clk := clock.NewFake(time.Unix(1700000000, 0))
		c := New[string](cfg, WithClock(clk))
		defer c.Close()

		c.Set("a", "1")
		c.Set("b", "2")
		clk.Advance(time.Second)
		c.Get("a") // a is now more recently used than b

		c.Set("c", "3")

		_, okA := c.Get("a")
		_, okB := c.Get("b")
		assert.True(t, okA)
		assert.False(t, okB, "least recently used entry must be evicted")
	})

	t.Run("insertion order breaks exact ties", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxItemCount = 2
		clk := clock.NewFake(time.Unix(1700000000, 0))
		c := New[string](cfg, WithClock(clk))
		defer c.Close()

		c.Set("first", "1")
		c.Set("second", "2")
		c.Set("third", "3")

		_, okFirst := c.Get("first")
		_, okSecond := c.Get("second")
		assert.False(t, okFirst)
		assert.True(t, okSecond)
	})

	t.Run("never evicts more than necessary", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxItemCount = 3
		c := New[string](cfg)
		defer c.Close()

		c.Set("a", "1")
		c.Set("b", "2")
		c.Set("c", "3")
		c.Set("d", "4")

		assert.Equal(t, 3, c.Stats().Entries)
		assert.Equal(t, int64(1), c.Stats().Evictions)
	})
}

func TestCache_OversizedValueRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalBytes = 10
	c := New[string](cfg)
	defer c.Close()

	c.Set("big", strings.Repeat("x", 100))

	_, ok := c.Get("big")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats().TotalBytes)
}

func TestCache_GetOrFetch(t *testing.T) {
	t.Run("fetches and stores on miss", func(t *testing.T) {
		c := New[string](testConfig())
		defer c.Close()

		calls := 0
		fetch := func(ctx context.Context) (string, error) {
			calls++
			return "fetched", nil
		}

		got, err := c.GetOrFetch(context.Background(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "fetched", got)
		assert.Equal(t, 1, calls)

		// Second call is served from cache.
		got, err = c.GetOrFetch(context.Background(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "fetched", got)
		assert.Equal(t, 1, calls)
	})

	t.Run("propagates fetch errors without caching", func(t *testing.T) {
		c := New[string](testConfig())
		defer c.Close()

		fetchErr := errors.New("remote unavailable")
		_, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
			return "", fetchErr
		})
		assert.ErrorIs(t, err, fetchErr)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("stale while revalidate returns stale immediately", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(1700000000, 0))
		c := New[string](testConfig(), WithClock(clk))
		defer c.Close()

		c.Set("k", "stale", WithTTL(time.Second))
		clk.Advance(2 * time.Second)

		fetched := make(chan struct{})
		got, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
			defer close(fetched)
			return "fresh", nil
		}, StaleWhileRevalidate())
		require.NoError(t, err)
		assert.Equal(t, "stale", got, "stale value must be returned immediately")

		<-fetched
		assert.Eventually(t, func() bool {
			v, ok := c.Get("k")
			return ok && v == "fresh"
		}, time.Second, 5*time.Millisecond, "background refresh must replace the stale entry")
	})

	t.Run("stale without revalidate blocks on fetch", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(1700000000, 0))
		c := New[string](testConfig(), WithClock(clk))
		defer c.Close()

		c.Set("k", "stale", WithTTL(time.Second))
		clk.Advance(2 * time.Second)

		got, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", got)
	})
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := New[string](testConfig())
	defer c.Close()

	c.Set("invoices:list:1", "a")
	c.Set("invoices:list:2", "b")
	c.Set("clients:list:1", "c")

	count, err := c.InvalidatePattern(`^invoices:list:`)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, ok := c.Get("invoices:list:1")
	assert.False(t, ok)
	_, ok = c.Get("clients:list:1")
	assert.True(t, ok)

	_, err = c.InvalidatePattern(`[`)
	assert.Error(t, err, "invalid pattern must be reported")
}

func TestCache_DeleteAndClear(t *testing.T) {
	store := storage.NewMemoryStore()
	ns := storage.NewNamespace(store, "cache:")
	c := New[string](testConfig(), WithStore(ns))
	defer c.Close()

	c.Set("a", "1", WithPersist())
	c.Set("b", "2", WithPersist())

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, err := store.Get("cache:a")
	assert.ErrorIs(t, err, storage.ErrNotFound, "durable copy must be removed with the entry")

	c.Clear()
	assert.Equal(t, 0, c.Stats().Entries)
	_, err = store.Get("cache:b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCache_PersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ns := storage.NewNamespace(store, "cache:")
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := New[invoiceView](testConfig(), WithStore(ns), WithClock(clk))
	c.Set("invoice:7", invoiceView{Number: "INV-007", Total: 99}, WithPersist(), WithTTL(time.Hour))
	c.Set("ephemeral", invoiceView{Number: "tmp"})
	c.Close()

	// Durable keys follow the cache:<key> / cache:meta layout.
	_, err := store.Get("cache:invoice:7")
	require.NoError(t, err)
	_, err = store.Get("cache:meta")
	require.NoError(t, err)

	reloaded := New[invoiceView](testConfig(), WithStore(ns), WithClock(clk))
	defer reloaded.Close()

	assert.Equal(t, 1, reloaded.LoadPersisted(), "only persisted entries are restored")
	got, ok := reloaded.Get("invoice:7")
	require.True(t, ok)
	assert.Equal(t, "INV-007", got.Number)
}

func TestCache_PersistenceSkipsExpiredOnReload(t *testing.T) {
	store := storage.NewMemoryStore()
	ns := storage.NewNamespace(store, "cache:")
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := New[string](testConfig(), WithStore(ns), WithClock(clk))
	c.Set("k", "v", WithPersist(), WithTTL(time.Second))
	c.Close()

	clk.Advance(time.Hour)
	reloaded := New[string](testConfig(), WithStore(ns), WithClock(clk))
	defer reloaded.Close()

	assert.Equal(t, 0, reloaded.LoadPersisted())
	_, ok := reloaded.Get("k")
	assert.False(t, ok)
}

func TestCache_CompressionOverThreshold(t *testing.T) {
	store := storage.NewMemoryStore()
	ns := storage.NewNamespace(store, "cache:")
	cfg := testConfig()
	cfg.CompressionThreshold = 64

	c := New[string](cfg, WithStore(ns))
	large := strings.Repeat("invoice line item ", 100)
	c.Set("large", large, WithPersist(), WithTTL(time.Hour))
	c.Set("small", "tiny", WithPersist(), WithTTL(time.Hour))
	c.Close()

	var pe persistedEntry
	blob, err := store.Get("cache:large")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(blob, &pe))
	assert.True(t, pe.Compressed)
	assert.Less(t, len(pe.Value), len(large), "durable copy must be smaller than the raw value")

	blob, err = store.Get("cache:small")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(blob, &pe))
	assert.False(t, pe.Compressed)

	// Compressed entries survive the reload path.
	reloaded := New[string](cfg, WithStore(ns))
	defer reloaded.Close()
	require.Equal(t, 2, reloaded.LoadPersisted())
	got, ok := reloaded.Get("large")
	require.True(t, ok)
	assert.Equal(t, large, got)
}

func TestCache_DurableOutageDegradesToMemory(t *testing.T) {
	store := storage.NewMemoryStore()
	store.FailWrites = true
	store.FailReads = true
	ns := storage.NewNamespace(store, "cache:")

	c := New[string](testConfig(), WithStore(ns))
	defer c.Close()

	// Writes and reads must not panic or surface storage errors.
	c.Set("k", "v", WithPersist())
	got, ok := c.Get("k")
	require.True(t, ok, "in-memory cache stays authoritative during a durable outage")
	assert.Equal(t, "v", got)

	assert.Equal(t, 0, c.LoadPersisted())
}

func TestCache_Sweep(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = time.Minute
	clk := clock.NewFake(time.Unix(1700000000, 0))
	c := New[string](cfg, WithClock(clk))
	defer c.Close()

	c.Set("short", "v", WithTTL(time.Second))
	c.Set("long", "v", WithTTL(time.Hour))

	clk.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		return c.Stats().Entries == 1
	}, time.Second, 5*time.Millisecond, "sweep must remove the expired entry")
}

func TestCache_OwnedCopyDetachedFromCaller(t *testing.T) {
	c := New[map[string]int](testConfig())
	defer c.Close()

	original := map[string]int{"total": 1}
	c.Set("k", original)
	original["total"] = 99

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, got["total"], "cache must own a copy of the stored value")
}
