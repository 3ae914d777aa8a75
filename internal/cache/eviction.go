package cache

import (
	"sort"

	"github.com/nexinvo/offline-core/internal/metrics"
)

// evictForLocked frees enough headroom for an insertion of the given size
// and slot count. Candidates are ranked by priority ascending, then least
// recently accessed, with insertion order as the tie-break; entries are
// evicted one at a time and never more than necessary. Callers hold c.mu.
func (c *Cache[V]) evictForLocked(size int64, slots int) {
	if c.totalBytes+size <= c.cfg.MaxTotalBytes && len(c.entries)+slots <= c.cfg.MaxItemCount {
		return
	}

	candidates := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if !a.lastAccessed.Equal(b.lastAccessed) {
			return a.lastAccessed.Before(b.lastAccessed)
		}
		return a.seq < b.seq
	})

	for _, victim := range candidates {
		if c.totalBytes+size <= c.cfg.MaxTotalBytes && len(c.entries)+slots <= c.cfg.MaxItemCount {
			break
		}
		c.removeLocked(victim, true)
		c.evictions++
		metrics.RecordCacheOperation("evict", "capacity")
	}
}
