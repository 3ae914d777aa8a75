// Package app wires the offline-core components together with an explicit
// Initialize/Close lifecycle, so embedding code and tests construct
// isolated instances instead of sharing ambient globals.
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/config"
	"github.com/nexinvo/offline-core/internal/cache"
	"github.com/nexinvo/offline-core/internal/clock"
	"github.com/nexinvo/offline-core/internal/memory"
	"github.com/nexinvo/offline-core/internal/platform"
	"github.com/nexinvo/offline-core/internal/storage"
	"github.com/nexinvo/offline-core/internal/syncq"
)

// Core owns the composed offline-resilience components.
type Core struct {
	cfg       config.Config
	store     storage.Store
	documents *cache.Cache[json.RawMessage]
	queue     *syncq.Manager
	mem       *memory.Manager
	monitor   *platform.HTTPMonitor
	lifecycle *platform.AppLifecycle

	unsubLifecycle func()
}

// Initialize constructs and starts the offline core: durable storage,
// the document cache (with startup reload), the sync queue, the memory
// manager with its registered strategies, and the platform collaborators.
func Initialize(ctx context.Context, cfg config.Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store storage.Store
	bc, err := storage.OpenBitcask(cfg.Storage.Path)
	if err != nil {
		// A durable-layer outage degrades to memory-only operation; the
		// in-memory state stays authoritative either way.
		log.Warn().Err(err).Str("path", cfg.Storage.Path).
			Msg("Durable storage unavailable, running memory-only")
		store = storage.NewMemoryStore()
	} else {
		store = bc
	}

	clk := clock.New()
	core := &Core{cfg: cfg, store: store}

	core.documents = cache.New[json.RawMessage](cache.Config{
		MaxTotalBytes:        cfg.Cache.MaxTotalBytes,
		MaxItemCount:         cfg.Cache.MaxItemCount,
		DefaultTTL:           cfg.Cache.DefaultTTL,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
		SweepInterval:        cfg.Cache.SweepInterval,
	}, cache.WithClock(clk), cache.WithStore(storage.NewNamespace(store, "cache:")))
	core.documents.LoadPersisted()

	core.monitor = platform.NewHTTPMonitor(cfg.Sync.ProbeURL, cfg.Sync.ProbeInterval)
	core.monitor.Start(ctx)

	client := &http.Client{Timeout: 30 * time.Second}
	disp := syncq.NewDispatcher()
	disp.Register(syncq.KindInvoice, platform.NewHTTPRemoteService(cfg.Sync.RemoteBaseURL+"/invoices", client))
	disp.Register(syncq.KindClient, platform.NewHTTPRemoteService(cfg.Sync.RemoteBaseURL+"/clients", client))
	disp.Register(syncq.KindPayment, platform.NewHTTPRemoteService(cfg.Sync.RemoteBaseURL+"/payments", client))
	disp.Register(syncq.KindAttachment, platform.NewHTTPRemoteService(cfg.Sync.RemoteBaseURL+"/attachments", client))

	core.queue = syncq.NewManager(store, core.monitor, disp, platform.LogNotifier{}, clk, cfg.Sync.MaxRetries)
	core.queue.Initialize(ctx)

	sampler, err := memory.NewProcessSampler()
	if err != nil {
		core.teardown()
		return nil, err
	}
	core.mem, err = memory.NewManager(memory.Config{
		Thresholds: memory.Thresholds{
			Warning:  cfg.Memory.WarningPercent,
			Critical: cfg.Memory.CriticalPercent,
			Cleanup:  cfg.Memory.CleanupPercent,
		},
		HistorySize:        cfg.Memory.HistorySize,
		Interval:           cfg.Memory.Interval,
		BackgroundInterval: cfg.Memory.BackgroundInterval,
		CriticalCutoff:     cfg.Memory.CriticalCutoff,
		BackgroundCutoff:   cfg.Memory.BackgroundCutoff,
	}, sampler, clk)
	if err != nil {
		core.teardown()
		return nil, err
	}
	core.registerStrategies()
	core.mem.Initialize(ctx)

	core.lifecycle = platform.NewAppLifecycle()
	core.unsubLifecycle = core.lifecycle.Subscribe(func(state platform.State) {
		switch state {
		case platform.StateBackground:
			core.mem.OnAppBackground(context.Background())
		case platform.StateForeground:
			core.mem.OnAppForeground()
		}
	})

	log.Info().Msg("Offline core initialized")
	return core, nil
}

// registerStrategies binds the built-in cleanup strategies: the document
// cache clears first, the failed-sync ledger is pruned late.
func (c *Core) registerStrategies() {
	c.mem.Register(c.documents.CleanupStrategy("document-cache", 1))
	c.mem.Register(memory.NewStrategy("sync-failed-ledger", 4,
		func() bool { return c.queue.GetStatus().FailedCount > 0 },
		func(ctx context.Context) (int64, error) {
			return c.queue.FreeFailed(), nil
		}))
}

// Close tears the core down in reverse construction order. Background
// timers are stopped deterministically before storage closes.
func (c *Core) Close() {
	log.Info().Msg("Offline core shutting down")
	c.teardown()
}

func (c *Core) teardown() {
	if c.unsubLifecycle != nil {
		c.unsubLifecycle()
	}
	if c.mem != nil {
		c.mem.Close()
	}
	if c.queue != nil {
		c.queue.Close()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.documents != nil {
		c.documents.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Durable storage close failed")
		}
	}
}

// Documents returns the shared response-document cache.
func (c *Core) Documents() *cache.Cache[json.RawMessage] { return c.documents }

// Queue returns the sync queue manager.
func (c *Core) Queue() *syncq.Manager { return c.queue }

// Memory returns the memory manager.
func (c *Core) Memory() *memory.Manager { return c.mem }

// Lifecycle returns the app lifecycle source the embedding app drives.
func (c *Core) Lifecycle() *platform.AppLifecycle { return c.lifecycle }
