// Package http provides the loopback diagnostics surface: read-only views
// of the sync queue, cache, and memory manager, plus manual triggers for a
// sync pass and a cleanup. It is an operator tool, not a public API.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexinvo/offline-core/internal/cache"
	"github.com/nexinvo/offline-core/internal/memory"
	"github.com/nexinvo/offline-core/internal/syncq"
)

// SyncQueue is the slice of the sync manager the diagnostics surface uses.
type SyncQueue interface {
	GetStatus() syncq.Status
	GetFailedItems() []syncq.Item
	RunSyncPass(ctx context.Context) syncq.PassResult
	RetryFailedItems(ctx context.Context) syncq.PassResult
}

// MemoryMonitor is the slice of the memory manager the diagnostics
// surface uses.
type MemoryMonitor interface {
	GetMemoryStats() memory.Stats
	PerformManualCleanup(ctx context.Context) []memory.StrategyResult
}

// CacheStats reports cache occupancy.
type CacheStats interface {
	Stats() cache.Stats
}

// Handler serves the diagnostics endpoints.
type Handler struct {
	queue SyncQueue
	mem   MemoryMonitor
	docs  CacheStats
}

// NewHandler creates a diagnostics handler over the core components.
func NewHandler(queue SyncQueue, mem MemoryMonitor, docs CacheStats) *Handler {
	return &Handler{queue: queue, mem: mem, docs: docs}
}

// Healthz handles the liveness probe endpoint.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SyncStatus returns a point-in-time view of the sync queue.
func (h *Handler) SyncStatus(c *gin.Context) {
	s := h.queue.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"isOnline":       s.IsOnline,
		"pendingCount":   s.PendingCount,
		"failedCount":    s.FailedCount,
		"lastSyncTime":   s.LastSyncTime,
		"syncInProgress": s.SyncInProgress,
	})
}

// SyncFailed returns the abandoned-item ledger.
func (h *Handler) SyncFailed(c *gin.Context) {
	items := h.queue.GetFailedItems()
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

// SyncRun triggers a sync pass and reports its outcome. A pass already in
// progress or an offline device is reported, not an HTTP error.
func (h *Handler) SyncRun(c *gin.Context) {
	result := h.queue.RunSyncPass(c.Request.Context())
	c.JSON(http.StatusOK, passResponse(result))
}

// SyncRetry re-queues abandoned items and runs a sync pass.
func (h *Handler) SyncRetry(c *gin.Context) {
	result := h.queue.RetryFailedItems(c.Request.Context())
	c.JSON(http.StatusOK, passResponse(result))
}

func passResponse(result syncq.PassResult) gin.H {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	return gin.H{
		"syncedCount": result.SyncedCount,
		"failedCount": result.FailedCount,
		"errors":      errs,
	}
}

// MemoryStats returns the current memory sample, level, and history.
func (h *Handler) MemoryStats(c *gin.Context) {
	stats := h.mem.GetMemoryStats()
	c.JSON(http.StatusOK, gin.H{
		"current":        stats.Current,
		"level":          stats.Level.String(),
		"history":        stats.History,
		"averagePercent": stats.AveragePercent,
	})
}

// MemoryCleanup runs every executable cleanup strategy and reports what
// each freed.
func (h *Handler) MemoryCleanup(c *gin.Context) {
	results := h.mem.PerformManualCleanup(c.Request.Context())
	out := make([]gin.H, 0, len(results))
	var freed int64
	for _, r := range results {
		entry := gin.H{"strategy": r.ID, "bytesFreed": r.BytesFreed}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		} else {
			freed += r.BytesFreed
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"totalBytesFreed": freed, "strategies": out})
}

// CacheStats returns cache occupancy and hit/miss counters.
func (h *Handler) CacheStats(c *gin.Context) {
	s := h.docs.Stats()
	c.JSON(http.StatusOK, gin.H{
		"entries":     s.Entries,
		"totalBytes":  s.TotalBytes,
		"hits":        s.Hits,
		"misses":      s.Misses,
		"evictions":   s.Evictions,
		"expirations": s.Expirations,
	})
}
