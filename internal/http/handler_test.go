package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexinvo/offline-core/internal/cache"
	"github.com/nexinvo/offline-core/internal/memory"
	"github.com/nexinvo/offline-core/internal/syncq"
)

type fakeQueue struct {
	status     syncq.Status
	failed     []syncq.Item
	passResult syncq.PassResult
	runCalls   int
	retryCalls int
}

func (f *fakeQueue) GetStatus() syncq.Status      { return f.status }
func (f *fakeQueue) GetFailedItems() []syncq.Item { return f.failed }
func (f *fakeQueue) RunSyncPass(ctx context.Context) syncq.PassResult {
	f.runCalls++
	return f.passResult
}
func (f *fakeQueue) RetryFailedItems(ctx context.Context) syncq.PassResult {
	f.retryCalls++
	return f.passResult
}

type fakeMemory struct {
	stats   memory.Stats
	results []memory.StrategyResult
}

func (f *fakeMemory) GetMemoryStats() memory.Stats { return f.stats }
func (f *fakeMemory) PerformManualCleanup(ctx context.Context) []memory.StrategyResult {
	return f.results
}

type fakeCache struct {
	stats cache.Stats
}

func (f *fakeCache) Stats() cache.Stats { return f.stats }

func newTestRouter(q *fakeQueue, m *fakeMemory, c *fakeCache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(q, m, c))
}

func doRequest(t *testing.T, router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeMemory{}, &fakeCache{})
	w, body := doRequest(t, router, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncStatus(t *testing.T) {
	q := &fakeQueue{status: syncq.Status{
		IsOnline:     true,
		PendingCount: 3,
		FailedCount:  1,
		LastSyncTime: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}}
	router := newTestRouter(q, &fakeMemory{}, &fakeCache{})

	w, body := doRequest(t, router, http.MethodGet, "/sync/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["isOnline"])
	assert.Equal(t, float64(3), body["pendingCount"])
	assert.Equal(t, float64(1), body["failedCount"])
	assert.Equal(t, false, body["syncInProgress"])
}

func TestSyncFailed(t *testing.T) {
	q := &fakeQueue{failed: []syncq.Item{
		{ID: "a", Kind: syncq.KindInvoice, Op: syncq.OpCreate, RetryCount: 3, LastError: "remote returned 500"},
	}}
	router := newTestRouter(q, &fakeMemory{}, &fakeCache{})

	w, body := doRequest(t, router, http.MethodGet, "/sync/failed")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "invoice", first["entityKind"])
	assert.Equal(t, "remote returned 500", first["lastError"])
}

func TestSyncRunAndRetry(t *testing.T) {
	q := &fakeQueue{passResult: syncq.PassResult{SyncedCount: 2, FailedCount: 1, Errors: []string{"update invoice x: boom"}}}
	router := newTestRouter(q, &fakeMemory{}, &fakeCache{})

	w, body := doRequest(t, router, http.MethodPost, "/sync/run")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["syncedCount"])
	assert.Equal(t, float64(1), body["failedCount"])
	assert.Len(t, body["errors"], 1)
	assert.Equal(t, 1, q.runCalls)

	w, _ = doRequest(t, router, http.MethodPost, "/sync/retry")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, q.retryCalls)
}

func TestSyncRunReportsOfflineWithoutHTTPError(t *testing.T) {
	q := &fakeQueue{passResult: syncq.PassResult{Errors: []string{"device is offline"}}}
	router := newTestRouter(q, &fakeMemory{}, &fakeCache{})

	w, body := doRequest(t, router, http.MethodPost, "/sync/run")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"device is offline"}, body["errors"])
}

func TestMemoryStats(t *testing.T) {
	m := &fakeMemory{stats: memory.Stats{
		Current:        memory.Sample{UsedBytes: 80, TotalBytes: 100, Percent: 80},
		Level:          memory.LevelWarning,
		History:        []memory.Sample{{Percent: 70}, {Percent: 80}},
		AveragePercent: 75,
	}}
	router := newTestRouter(&fakeQueue{}, m, &fakeCache{})

	w, body := doRequest(t, router, http.MethodGet, "/memory/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "warning", body["level"])
	assert.Equal(t, float64(75), body["averagePercent"])
	assert.Len(t, body["history"], 2)
}

func TestMemoryCleanup(t *testing.T) {
	m := &fakeMemory{results: []memory.StrategyResult{
		{ID: "document-cache", BytesFreed: 4096},
		{ID: "sync-failed-ledger", Err: errors.New("ledger busy")},
	}}
	router := newTestRouter(&fakeQueue{}, m, &fakeCache{})

	w, body := doRequest(t, router, http.MethodPost, "/memory/cleanup")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4096), body["totalBytesFreed"])

	strategies := body["strategies"].([]any)
	require.Len(t, strategies, 2)
	second := strategies[1].(map[string]any)
	assert.Equal(t, "ledger busy", second["error"])
}

func TestCacheStats(t *testing.T) {
	c := &fakeCache{stats: cache.Stats{Entries: 12, TotalBytes: 2048, Hits: 90, Misses: 10}}
	router := newTestRouter(&fakeQueue{}, &fakeMemory{}, c)

	w, body := doRequest(t, router, http.MethodGet, "/cache/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(12), body["entries"])
	assert.Equal(t, float64(2048), body["totalBytes"])
	assert.Equal(t, float64(90), body["hits"])
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeMemory{}, &fakeCache{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
