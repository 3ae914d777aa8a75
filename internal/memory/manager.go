// Package memory provides the threshold-driven memory-pressure manager.
// Every monitoring tick independently evaluates current usage against the
// warning/critical/cleanup thresholds (level-triggered, not edge-triggered)
// and invokes registered cleanup strategies in ascending priority order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/internal/clock"
	"github.com/nexinvo/offline-core/internal/metrics"
)

// Level classifies current memory usage against the configured thresholds.
type Level int

const (
	// LevelNormal means usage is below every threshold.
	LevelNormal Level = iota
	// LevelWarning means usage crossed the warning threshold.
	LevelWarning
	// LevelCritical means usage crossed the critical threshold.
	LevelCritical
	// LevelCleanup means usage crossed the cleanup threshold.
	LevelCleanup
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// Thresholds are usage percentages satisfying warning < critical < cleanup.
type Thresholds struct {
	Warning  float64
	Critical float64
	Cleanup  float64
}

// Config holds memory manager behavior.
type Config struct {
	Thresholds         Thresholds
	HistorySize        int
	Interval           time.Duration
	BackgroundInterval time.Duration
	// CriticalCutoff bounds which strategies run at the critical level
	// (priority <= cutoff); BackgroundCutoff does the same for the
	// proactive cleanup on background transitions.
	CriticalCutoff   int
	BackgroundCutoff int
}

// DefaultConfig returns the default memory manager configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:         Thresholds{Warning: 75, Critical: 85, Cleanup: 90},
		HistorySize:        60,
		Interval:           30 * time.Second,
		BackgroundInterval: 5 * time.Minute,
		CriticalCutoff:     2,
		BackgroundCutoff:   3,
	}
}

// Validate fails fast on inconsistent thresholds.
func (c Config) Validate() error {
	t := c.Thresholds
	if t.Warning <= 0 || t.Warning >= t.Critical || t.Critical >= t.Cleanup || t.Cleanup > 100 {
		return fmt.Errorf("memory: thresholds must satisfy 0 < warning < critical < cleanup <= 100, got %.1f/%.1f/%.1f",
			t.Warning, t.Critical, t.Cleanup)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("memory: history size must be positive, got %d", c.HistorySize)
	}
	return nil
}

// AlertHandler observes threshold alerts. Handlers run synchronously in
// registration order; a panicking handler never stops the others.
type AlertHandler func(level Level, sample Sample)

// Stats is a snapshot of the manager's observations.
type Stats struct {
	Current        Sample
	Level          Level
	History        []Sample
	AveragePercent float64
}

// Manager samples memory pressure and dispatches cleanup strategies. It
// holds only the strategy closures its collaborators registered; it never
// mutates another component's state directly.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	sampler    Sampler
	clk        clock.Clock
	strategies []Strategy
	handlers   []AlertHandler

	history []Sample
	histPos int

	lastSample Sample
	lastLevel  Level

	ticker    clock.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a memory manager. It fails fast on an invalid
// configuration.
func NewManager(cfg Config, sampler Sampler, clk clock.Clock) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		cfg:     cfg,
		sampler: sampler,
		clk:     clk,
		history: make([]Sample, 0, cfg.HistorySize),
		done:    make(chan struct{}),
	}, nil
}

// Register adds a cleanup strategy, keeping the list ordered by priority.
// Registration order breaks priority ties.
func (m *Manager) Register(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies = append(m.strategies, s)
	sort.SliceStable(m.strategies, func(i, j int) bool {
		return m.strategies[i].Priority() < m.strategies[j].Priority()
	})
}

// RegisterAlertHandler adds an observer for warning/critical/cleanup alerts.
func (m *Manager) RegisterAlertHandler(fn AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Initialize starts the timer-driven monitoring loop.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.ticker == nil {
		m.ticker = m.clk.NewTicker(m.cfg.Interval)
		go m.monitorLoop(ctx)
	}
	m.mu.Unlock()
}

// Close stops the monitoring loop deterministically.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		if m.ticker != nil {
			m.ticker.Stop()
		}
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *Manager) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-m.ticker.C():
			if _, _, err := m.CheckMemoryUsage(ctx); err != nil {
				log.Warn().Err(err).Msg("Memory check failed")
			}
		case <-m.done:
			return
		}
	}
}

// CheckMemoryUsage samples usage, appends it to the bounded history, and
// reacts to the current level: cleanup runs every executable strategy,
// critical runs strategies up to the critical cutoff, warning alerts only.
func (m *Manager) CheckMemoryUsage(ctx context.Context) (Sample, Level, error) {
	sample, err := m.sampler.Sample()
	if err != nil {
		return Sample{}, LevelNormal, err
	}
	if sample.TotalBytes > 0 {
		sample.Percent = float64(sample.UsedBytes) / float64(sample.TotalBytes) * 100
	}
	sample.Timestamp = m.clk.Now()

	level := m.levelFor(sample.Percent)

	m.mu.Lock()
	m.appendHistoryLocked(sample)
	m.lastSample = sample
	m.lastLevel = level
	m.mu.Unlock()

	metrics.MemoryUsagePercent.Set(sample.Percent)

	switch level {
	case LevelCleanup:
		m.alert(level, sample)
		results := m.runStrategies(ctx, func(Strategy) bool { return true })
		logCleanup("emergency", results)
	case LevelCritical:
		m.alert(level, sample)
		results := m.runStrategies(ctx, func(s Strategy) bool { return s.Priority() <= m.cfg.CriticalCutoff })
		logCleanup("critical", results)
	case LevelWarning:
		m.alert(level, sample)
		log.Info().Float64("percent", sample.Percent).Msg("Memory usage above warning threshold")
	}
	return sample, level, nil
}

// PerformManualCleanup runs every executable strategy regardless of the
// current usage level. One strategy failing never prevents the others.
func (m *Manager) PerformManualCleanup(ctx context.Context) []StrategyResult {
	results := m.runStrategies(ctx, func(Strategy) bool { return true })
	logCleanup("manual", results)
	return results
}

// OnAppBackground proactively frees memory and slows the monitoring
// cadence while the app is backgrounded.
func (m *Manager) OnAppBackground(ctx context.Context) {
	results := m.runStrategies(ctx, func(s Strategy) bool { return s.Priority() <= m.cfg.BackgroundCutoff })
	logCleanup("background", results)

	m.mu.Lock()
	if m.ticker != nil {
		m.ticker.Reset(m.cfg.BackgroundInterval)
	}
	m.mu.Unlock()
	log.Debug().Dur("interval", m.cfg.BackgroundInterval).Msg("Memory monitoring slowed for background")
}

// OnAppForeground restores the normal monitoring cadence.
func (m *Manager) OnAppForeground() {
	m.mu.Lock()
	if m.ticker != nil {
		m.ticker.Reset(m.cfg.Interval)
	}
	m.mu.Unlock()
	log.Debug().Dur("interval", m.cfg.Interval).Msg("Memory monitoring restored for foreground")
}

// GetMemoryStats returns the last sample, its level, and a chronological
// copy of the bounded history.
func (m *Manager) GetMemoryStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.historyLocked()
	var sum float64
	for _, s := range history {
		sum += s.Percent
	}
	avg := 0.0
	if len(history) > 0 {
		avg = sum / float64(len(history))
	}
	return Stats{
		Current:        m.lastSample,
		Level:          m.lastLevel,
		History:        history,
		AveragePercent: avg,
	}
}

func (m *Manager) levelFor(percent float64) Level {
	t := m.cfg.Thresholds
	switch {
	case percent >= t.Cleanup:
		return LevelCleanup
	case percent >= t.Critical:
		return LevelCritical
	case percent >= t.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// runStrategies executes the selected strategies in priority order outside
// the manager lock, so strategies may freely call back into their owners.
func (m *Manager) runStrategies(ctx context.Context, match func(Strategy) bool) []StrategyResult {
	m.mu.Lock()
	strategies := make([]Strategy, len(m.strategies))
	copy(strategies, m.strategies)
	m.mu.Unlock()

	var results []StrategyResult
	for _, s := range strategies {
		if !match(s) || !s.CanExecute() {
			continue
		}
		freed, err := s.Execute(ctx)
		results = append(results, StrategyResult{ID: s.ID(), BytesFreed: freed, Err: err})
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.ID()).Msg("Cleanup strategy failed")
			continue
		}
		metrics.CleanupBytesFreed.WithLabelValues(s.ID()).Add(float64(freed))
	}
	return results
}

// alert notifies handlers synchronously in registration order, recovering
// from per-handler panics.
func (m *Manager) alert(level Level, sample Sample) {
	metrics.MemoryAlerts.WithLabelValues(level.String()).Inc()

	m.mu.Lock()
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Memory alert handler panicked")
				}
			}()
			fn(level, sample)
		}()
	}
}

// appendHistoryLocked stores a sample in the bounded ring, evicting the
// oldest when full. Callers hold m.mu.
func (m *Manager) appendHistoryLocked(sample Sample) {
	if len(m.history) < m.cfg.HistorySize {
		m.history = append(m.history, sample)
		return
	}
	m.history[m.histPos] = sample
	m.histPos = (m.histPos + 1) % m.cfg.HistorySize
}

// historyLocked returns samples oldest first. Callers hold m.mu.
func (m *Manager) historyLocked() []Sample {
	out := make([]Sample, 0, len(m.history))
	if len(m.history) < m.cfg.HistorySize {
		out = append(out, m.history...)
		return out
	}
	out = append(out, m.history[m.histPos:]...)
	out = append(out, m.history[:m.histPos]...)
	return out
}

func logCleanup(trigger string, results []StrategyResult) {
	if len(results) == 0 {
		return
	}
	var freed int64
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		freed += r.BytesFreed
	}
	log.Info().
		Str("trigger", trigger).
		Int("strategies", len(results)).
		Int("failed", failed).
		Int64("bytes_freed", freed).
		Msg("Memory cleanup completed")
}
