// Package config provides configuration management for the offline core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete offline-core configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Cache   CacheConfig
	Sync    SyncConfig
	Memory  MemoryConfig
}

// ServerConfig holds the diagnostics HTTP server configuration.
type ServerConfig struct {
	Addr      string
	LogLevel  string
	LogPretty bool
}

// StorageConfig holds the durable key/value store configuration.
type StorageConfig struct {
	Path string
}

// CacheConfig holds cache layer bounds and behavior.
type CacheConfig struct {
	MaxTotalBytes        int64
	MaxItemCount         int
	DefaultTTL           time.Duration
	CompressionThreshold int
	SweepInterval        time.Duration
}

// SyncConfig holds sync queue behavior.
type SyncConfig struct {
	MaxRetries    int
	RemoteBaseURL string
	ProbeURL      string
	ProbeInterval time.Duration
}

// MemoryConfig holds memory manager thresholds and cadence.
// Thresholds are percentages of used/total memory and must satisfy
// 0 < Warning < Critical < Cleanup <= 100.
type MemoryConfig struct {
	WarningPercent     float64
	CriticalPercent    float64
	CleanupPercent     float64
	HistorySize        int
	Interval           time.Duration
	BackgroundInterval time.Duration
	CriticalCutoff     int
	BackgroundCutoff   int
}

// Load creates a Config from environment variables.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:      getEnv("DIAG_ADDR", "127.0.0.1:8090"),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogPretty: getEnvBool("LOG_PRETTY", false),
		},
		Storage: StorageConfig{
			Path: getEnv("STORAGE_PATH", "data/offline.db"),
		},
		Cache: CacheConfig{
			MaxTotalBytes:        getEnvInt64("CACHE_MAX_BYTES", 10<<20),
			MaxItemCount:         getEnvInt("CACHE_MAX_ITEMS", 1000),
			DefaultTTL:           getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			CompressionThreshold: getEnvInt("CACHE_COMPRESSION_THRESHOLD", 10<<10),
			SweepInterval:        getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Sync: SyncConfig{
			MaxRetries:    getEnvInt("SYNC_MAX_RETRIES", 3),
			RemoteBaseURL: getEnv("SYNC_REMOTE_BASE_URL", "http://localhost:8000/api/v1"),
			ProbeURL:      getEnv("SYNC_PROBE_URL", "http://localhost:8000/api/v1/health"),
			ProbeInterval: getEnvDuration("SYNC_PROBE_INTERVAL", 15*time.Second),
		},
		Memory: MemoryConfig{
			WarningPercent:     getEnvFloat("MEMORY_WARNING_PERCENT", 75),
			CriticalPercent:    getEnvFloat("MEMORY_CRITICAL_PERCENT", 85),
			CleanupPercent:     getEnvFloat("MEMORY_CLEANUP_PERCENT", 90),
			HistorySize:        getEnvInt("MEMORY_HISTORY_SIZE", 60),
			Interval:           getEnvDuration("MEMORY_CHECK_INTERVAL", 30*time.Second),
			BackgroundInterval: getEnvDuration("MEMORY_BACKGROUND_INTERVAL", 5*time.Minute),
			CriticalCutoff:     getEnvInt("MEMORY_CRITICAL_CUTOFF", 2),
			BackgroundCutoff:   getEnvInt("MEMORY_BACKGROUND_CUTOFF", 3),
		},
	}
}

// Validate checks configuration invariants and fails fast on invalid values.
func (c Config) Validate() error {
	m := c.Memory
	if m.WarningPercent <= 0 || m.WarningPercent >= m.CriticalPercent ||
		m.CriticalPercent >= m.CleanupPercent || m.CleanupPercent > 100 {
		return fmt.Errorf("config: memory thresholds must satisfy 0 < warning < critical < cleanup <= 100, got %.1f/%.1f/%.1f",
			m.WarningPercent, m.CriticalPercent, m.CleanupPercent)
	}
	if m.HistorySize <= 0 {
		return fmt.Errorf("config: memory history size must be positive, got %d", m.HistorySize)
	}
	if c.Cache.MaxTotalBytes <= 0 || c.Cache.MaxItemCount <= 0 {
		return fmt.Errorf("config: cache bounds must be positive, got %d bytes / %d items",
			c.Cache.MaxTotalBytes, c.Cache.MaxItemCount)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("config: cache default TTL must be positive, got %s", c.Cache.DefaultTTL)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("config: sync max retries must be at least 1, got %d", c.Sync.MaxRetries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
