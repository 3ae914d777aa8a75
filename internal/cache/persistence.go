package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/internal/storage"
)

// metaKey holds the list of persisted entry keys for startup reload.
// It is reserved: entries under this key are never persisted.
const metaKey = "meta"

// persistedEntry is the durable envelope for one cache entry. Value holds
// the JSON encoding of the entry value, gzip-compressed when it met the
// compression threshold at write time.
type persistedEntry struct {
	Value      []byte    `json:"value"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"createdAt"`
	TTLMillis  int64     `json:"ttlMs"`
	Priority   Priority  `json:"priority"`
}

// persistLocked writes a durable copy of the entry and refreshes the meta
// list. All storage failures are logged and swallowed; the in-memory entry
// stays authoritative. Callers hold c.mu.
func (c *Cache[V]) persistLocked(e *entry[V]) {
	if c.store == nil {
		return
	}
	if e.key == metaKey {
		log.Warn().Str("key", e.key).Msg("Cache key is reserved, durable copy skipped")
		return
	}

	data := e.encoded
	compressed := false
	if c.cfg.CompressionThreshold > 0 && len(data) >= c.cfg.CompressionThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err == nil && zw.Close() == nil {
			data = buf.Bytes()
			compressed = true
		} else {
			log.Warn().Str("key", e.key).Msg("Cache entry compression failed, storing uncompressed")
		}
	}

	blob, err := json.Marshal(persistedEntry{
		Value:      data,
		Compressed: compressed,
		CreatedAt:  e.createdAt,
		TTLMillis:  e.ttl.Milliseconds(),
		Priority:   e.priority,
	})
	if err != nil {
		log.Warn().Err(err).Str("key", e.key).Msg("Cache entry durable encode failed")
		return
	}
	if err := c.store.Put(e.key, blob); err != nil {
		log.Warn().Err(err).Str("key", e.key).Msg("Cache entry durable write failed")
		return
	}
	e.persisted = true
	c.writeMetaLocked()
}

// dropPersistedLocked removes the durable copy of a key and refreshes the
// meta list. Callers hold c.mu.
func (c *Cache[V]) dropPersistedLocked(key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache entry durable delete failed")
	}
	c.writeMetaLocked()
}

// writeMetaLocked persists the current list of durable entry keys.
func (c *Cache[V]) writeMetaLocked() {
	keys := make([]string, 0)
	for key, e := range c.entries {
		if e.persisted {
			keys = append(keys, key)
		}
	}
	blob, err := json.Marshal(keys)
	if err != nil {
		log.Warn().Err(err).Msg("Cache meta encode failed")
		return
	}
	if err := c.store.Put(metaKey, blob); err != nil {
		log.Warn().Err(err).Msg("Cache meta write failed")
	}
}

// LoadPersisted restores persisted entries listed in the meta key, skipping
// expired or undecodable blobs. It returns the number of entries restored.
// Storage failures degrade to an empty reload, never an error to the caller.
func (c *Cache[V]) LoadPersisted() int {
	if c.store == nil {
		return 0
	}

	blob, err := c.store.Get(metaKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("Cache meta read failed, starting empty")
		}
		return 0
	}
	var keys []string
	if err := json.Unmarshal(blob, &keys); err != nil {
		log.Warn().Err(err).Msg("Cache meta decode failed, starting empty")
		return 0
	}

	loaded := 0
	now := c.clk.Now()
	for _, key := range keys {
		if c.loadEntry(key, now) {
			loaded++
		}
	}
	if loaded > 0 {
		log.Info().Int("entries", loaded).Msg("Cache entries restored from durable storage")
	}
	return loaded
}

// loadEntry restores a single persisted entry if it is still live.
func (c *Cache[V]) loadEntry(key string, now time.Time) bool {
	blob, err := c.store.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache entry durable read failed")
		return false
	}
	var pe persistedEntry
	if err := json.Unmarshal(blob, &pe); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache entry durable decode failed")
		return false
	}

	ttl := time.Duration(pe.TTLMillis) * time.Millisecond
	if now.Sub(pe.CreatedAt) > ttl {
		c.mu.Lock()
		c.dropPersistedLocked(key)
		c.mu.Unlock()
		return false
	}

	encoded := pe.Value
	if pe.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(pe.Value))
		if err == nil {
			encoded, err = io.ReadAll(zr)
			zr.Close()
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache entry decompression failed")
			return false
		}
	}
	var value V
	if err := json.Unmarshal(encoded, &value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache entry value decode failed")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return false
	}
	size := int64(len(encoded))
	if size > c.cfg.MaxTotalBytes {
		return false
	}
	c.evictForLocked(size, 1)
	c.seq++
	e := &entry[V]{
		key:          key,
		value:        value,
		encoded:      encoded,
		createdAt:    pe.CreatedAt,
		ttl:          ttl,
		priority:     pe.Priority,
		size:         size,
		lastAccessed: now,
		seq:          c.seq,
		persisted:    true,
	}
	c.entries[key] = e
	c.totalBytes += size
	c.updateGaugesLocked()
	return true
}
