// Package changedfiles caches the VCS-probed dirty-file set per
// canonical root with a TTL, so the changed-files boost (spec section
// 5) doesn't shell out to git on every search request. A probe failure
// returns the previous cached value when available, else an empty
// unavailable result (spec section 5's explicit fallback rule).
package changedfiles

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Prober is the subset of vcsprobe.Prober the cache depends on.
type Prober interface {
	ChangedFiles(ctx context.Context, canonicalRoot string) ([]string, error)
}

// Cache is a TTL-bounded, per-root changed-files cache. The TTL layer
// itself is an expirable LRU (fresh lookups fall straight through); a
// separate last-known-good map survives TTL eviction so a probe
// failure can still fall back to a stale value, which an expirable LRU
// alone cannot provide once an entry ages out.
type Cache struct {
	prober Prober
	fresh  *expirable.LRU[string, []string]

	mu       sync.Mutex
	lastGood map[string][]string
}

// NewCache builds a Cache bound to a Prober with the given TTL in
// milliseconds.
func NewCache(prober Prober, ttlMS int64) *Cache {
	return &Cache{
		prober:   prober,
		fresh:    expirable.NewLRU[string, []string](256, nil, time.Duration(ttlMS)*time.Millisecond),
		lastGood: make(map[string][]string),
	}
}

// Result is the changed-files lookup outcome for one canonical root.
type Result struct {
	Files     []string
	Available bool
}

// Get returns the changed-files set for canonicalRoot, refreshing it
// lazily when the cached entry has expired. On a probe failure it
// falls back to the previous cached value if one exists, otherwise
// returns an unavailable, empty result.
func (c *Cache) Get(ctx context.Context, canonicalRoot string) Result {
	if files, ok := c.fresh.Get(canonicalRoot); ok {
		return Result{Files: files, Available: true}
	}

	files, err := c.prober.ChangedFiles(ctx, canonicalRoot)
	if err != nil {
		c.mu.Lock()
		stale, ok := c.lastGood[canonicalRoot]
		c.mu.Unlock()
		if ok {
			return Result{Files: stale, Available: true}
		}
		return Result{Available: false}
	}

	c.fresh.Add(canonicalRoot, files)
	c.mu.Lock()
	c.lastGood[canonicalRoot] = files
	c.mu.Unlock()

	return Result{Files: files, Available: true}
}

// Invalidate drops the cached entry for canonicalRoot, forcing the
// next Get to reprobe immediately.
func (c *Cache) Invalidate(canonicalRoot string) {
	c.fresh.Remove(canonicalRoot)
	c.mu.Lock()
	delete(c.lastGood, canonicalRoot)
	c.mu.Unlock()
}
