package cache

import (
	"context"

	"github.com/nexinvo/offline-core/internal/memory"
)

// CleanupStrategy adapts the cache into a memory-manager cleanup strategy
// that clears every entry and reports the bytes freed. It is executable
// only while the cache holds entries.
func (c *Cache[V]) CleanupStrategy(id string, priority int) memory.Strategy {
	return memory.NewStrategy(id, priority,
		func() bool { return c.Stats().Entries > 0 },
		func(ctx context.Context) (int64, error) {
			freed := c.Stats().TotalBytes
			c.Clear()
			return freed, nil
		})
}
