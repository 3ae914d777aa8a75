// Package syncq provides the durable, ordered queue of mutations created
// while offline. Queued items are replayed in enqueue order against the
// remote business services once connectivity returns; failed items retry in
// place up to a bounded count before moving to a recoverable failed ledger.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/internal/clock"
	"github.com/nexinvo/offline-core/internal/metrics"
	"github.com/nexinvo/offline-core/internal/storage"
)

// Durable storage keys owned by the sync queue.
const (
	queueKey    = "sync_queue"
	failedKey   = "sync_failed"
	lastSyncKey = "last_sync_time"
)

// Pass failure messages surfaced through PassResult.Errors.
const (
	msgAlreadyInProgress = "sync already in progress"
	msgOffline           = "device is offline"
)

// Reachability is the connectivity collaborator consumed by the queue.
type Reachability interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// Notifier surfaces user-visible sync outcomes, fire-and-forget.
type Notifier interface {
	Notify(kind, message string)
}

// Manager owns the pending-mutation queue. All queue mutations are
// serialized by a single mutex; at most one sync pass runs at a time.
type Manager struct {
	mu          sync.Mutex
	store       storage.Store
	reach       Reachability
	disp        *Dispatcher
	notifier    Notifier
	clk         clock.Clock
	maxRetries  int
	queue       []*Item
	failed      []*Item
	lastSync    time.Time
	inProgress  bool
	unsubscribe func()
}

// NewManager creates a sync queue manager. maxRetries bounds how many
// passes may fail an item before it is abandoned.
func NewManager(store storage.Store, reach Reachability, disp *Dispatcher, notifier Notifier, clk clock.Clock, maxRetries int) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:      store,
		reach:      reach,
		disp:       disp,
		notifier:   notifier,
		clk:        clk,
		maxRetries: maxRetries,
	}
}

// Initialize loads the persisted queue state and subscribes to
// reachability changes so a reconnect triggers a sync pass.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	m.loadLocked()
	m.mu.Unlock()

	m.unsubscribe = m.reach.Subscribe(func(online bool) {
		if !online {
			return
		}
		log.Info().Msg("Connectivity restored, starting sync pass")
		go m.RunSyncPass(context.Background())
	})
}

// Close detaches the reachability subscription. Queue state is already
// durable; nothing else needs flushing.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Enqueue appends a new pending mutation and persists the queue. It never
// fails: storage errors are logged and swallowed, the in-memory queue is
// authoritative. If the device is online and no pass is running, a pass is
// started asynchronously.
func (m *Manager) Enqueue(kind EntityKind, op Operation, payload json.RawMessage) Item {
	item := &Item{
		ID:         uuid.NewString(),
		Kind:       kind,
		Op:         op,
		Payload:    payload,
		EnqueuedAt: m.clk.Now(),
	}

	m.mu.Lock()
	m.queue = append(m.queue, item)
	m.persistQueueLocked()
	metrics.SyncQueueDepth.Set(float64(len(m.queue)))
	startPass := !m.inProgress && m.reach.IsOnline()
	m.mu.Unlock()

	log.Debug().
		Str("id", item.ID).
		Str("entity_kind", string(kind)).
		Str("operation", string(op)).
		Msg("Mutation enqueued")

	if startPass {
		go m.RunSyncPass(context.Background())
	}
	return *item
}

// RunSyncPass replays the queued items snapshotted at pass start, in
// original enqueue order. It reports failure without doing work when
// offline or when a pass is already running. One item's failure never
// aborts the pass for subsequent items. Replay is last-writer-wins: a
// queued update is sent as-is even if the remote entity changed after it
// was enqueued.
func (m *Manager) RunSyncPass(ctx context.Context) PassResult {
	m.mu.Lock()
	if m.inProgress {
		m.mu.Unlock()
		return PassResult{Errors: []string{msgAlreadyInProgress}}
	}
	if !m.reach.IsOnline() {
		m.mu.Unlock()
		return PassResult{Errors: []string{msgOffline}}
	}
	m.inProgress = true
	snapshot := make([]*Item, len(m.queue))
	copy(snapshot, m.queue)
	m.mu.Unlock()

	start := m.clk.Now()
	var result PassResult
	for _, item := range snapshot {
		err := m.disp.dispatch(ctx, item)

		m.mu.Lock()
		if err == nil {
			m.removeLocked(item.ID)
			result.SyncedCount++
			metrics.SyncItems.WithLabelValues("synced").Inc()
		} else {
			item.RetryCount++
			item.LastError = err.Error()
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s %s: %v", item.Op, item.Kind, item.ID, err))
			metrics.SyncItems.WithLabelValues("failed").Inc()

			if item.RetryCount >= m.maxRetries {
				m.removeLocked(item.ID)
				m.failed = append(m.failed, item)
				metrics.SyncItems.WithLabelValues("abandoned").Inc()
				log.Warn().
					Str("id", item.ID).
					Str("entity_kind", string(item.Kind)).
					Int("retries", item.RetryCount).
					Str("last_error", item.LastError).
					Msg("Sync item abandoned after exhausting retries")
			}
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	if result.SyncedCount > 0 {
		m.lastSync = m.clk.Now()
		m.persistLastSyncLocked()
	}
	m.persistQueueLocked()
	m.persistFailedLocked()
	metrics.SyncQueueDepth.Set(float64(len(m.queue)))
	m.inProgress = false
	m.mu.Unlock()

	metrics.SyncPassDuration.Observe(m.clk.Now().Sub(start).Seconds())
	log.Info().
		Int("synced", result.SyncedCount).
		Int("failed", result.FailedCount).
		Msg("Sync pass completed")

	if result.SyncedCount > 0 && m.notifier != nil {
		m.notifier.Notify("sync", fmt.Sprintf("%d items synced", result.SyncedCount))
	}
	return result
}

// GetStatus returns a point-in-time view of the queue.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		IsOnline:       m.reach.IsOnline(),
		PendingCount:   len(m.queue),
		FailedCount:    len(m.failed),
		LastSyncTime:   m.lastSync,
		SyncInProgress: m.inProgress,
	}
}

// GetFailedItems returns the items that exhausted their retries, in the
// order they were abandoned.
func (m *Manager) GetFailedItems() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Item, 0, len(m.failed))
	for _, item := range m.failed {
		items = append(items, *item)
	}
	return items
}

// RetryFailedItems resets retry counters on abandoned items, re-queues
// them, and runs a new sync pass.
func (m *Manager) RetryFailedItems(ctx context.Context) PassResult {
	m.mu.Lock()
	for _, item := range m.failed {
		item.RetryCount = 0
		item.LastError = ""
		m.queue = append(m.queue, item)
	}
	requeued := len(m.failed)
	m.failed = nil
	m.persistQueueLocked()
	m.persistFailedLocked()
	metrics.SyncQueueDepth.Set(float64(len(m.queue)))
	m.mu.Unlock()

	if requeued > 0 {
		log.Info().Int("requeued", requeued).Msg("Abandoned items re-queued for retry")
	}
	return m.RunSyncPass(ctx)
}

// FreeFailed drops the failed-item ledger and returns the bytes its
// payloads held. Used by the memory manager's cleanup strategy.
func (m *Manager) FreeFailed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var freed int64
	for _, item := range m.failed {
		freed += int64(len(item.Payload))
	}
	m.failed = nil
	m.persistFailedLocked()
	return freed
}

// removeLocked deletes one item from the queue, preserving order.
// Callers hold m.mu.
func (m *Manager) removeLocked(id string) {
	for i, item := range m.queue {
		if item.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// loadLocked restores queue state from durable storage. Undecodable or
// missing state degrades to an empty queue. Callers hold m.mu.
func (m *Manager) loadLocked() {
	m.queue = loadItems(m.store, queueKey)
	m.failed = loadItems(m.store, failedKey)
	metrics.SyncQueueDepth.Set(float64(len(m.queue)))

	if blob, err := m.store.Get(lastSyncKey); err == nil {
		if t, err := time.Parse(time.RFC3339, string(blob)); err == nil {
			m.lastSync = t
		}
	}
	if len(m.queue) > 0 || len(m.failed) > 0 {
		log.Info().
			Int("pending", len(m.queue)).
			Int("failed", len(m.failed)).
			Msg("Sync queue restored from durable storage")
	}
}

func loadItems(store storage.Store, key string) []*Item {
	blob, err := store.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Sync queue durable read failed, starting empty")
		}
		return nil
	}
	var items []*Item
	if err := json.Unmarshal(blob, &items); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Sync queue durable decode failed, starting empty")
		return nil
	}
	return items
}

func (m *Manager) persistQueueLocked() {
	persistItems(m.store, queueKey, m.queue)
}

func (m *Manager) persistFailedLocked() {
	persistItems(m.store, failedKey, m.failed)
}

func (m *Manager) persistLastSyncLocked() {
	if err := m.store.Put(lastSyncKey, []byte(m.lastSync.Format(time.RFC3339))); err != nil {
		log.Warn().Err(err).Msg("Last sync time durable write failed")
	}
}

func persistItems(store storage.Store, key string, items []*Item) {
	if items == nil {
		items = []*Item{}
	}
	blob, err := json.Marshal(items)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Sync queue durable encode failed")
		return
	}
	if err := store.Put(key, blob); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Sync queue durable write failed")
	}
}
