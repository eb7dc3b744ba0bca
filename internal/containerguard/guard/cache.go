package guard

import (
	"strings"
	"sync"
	"time"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
)

type cacheEntry struct {
	info     dockerapi.ContainerInfo
	cachedAt time.Time
}

// containerCache is the single-writer (refresh task), many-reader (alert
// handlers) container inventory cache, TTL-bounded and size-bounded
// (spec.md §3, §4.7).
type containerCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
	byID    map[string]cacheEntry
	order   []string // insertion order, for bounded eviction
}

func newContainerCache(ttl time.Duration, maxSize int) *containerCache {
	return &containerCache{
		ttl:     ttl,
		maxSize: maxSize,
		byID:    make(map[string]cacheEntry),
	}
}

// Refresh replaces the cache contents wholesale from a fresh inventory
// listing, bounding the result to maxSize entries (the first maxSize in
// listing order are kept; later entries are dropped).
func (c *containerCache) Refresh(infos []dockerapi.ContainerInfo, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]cacheEntry, len(infos))
	c.order = c.order[:0]
	for _, info := range infos {
		if len(c.byID) >= c.maxSize {
			break
		}
		c.byID[info.ID] = cacheEntry{info: info, cachedAt: now}
		c.order = append(c.order, info.ID)
	}
}

// Size returns the current entry count, for the metrics gauge.
func (c *containerCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Stale reports whether the cache needs a Refresh given now.
func (c *containerCache) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return true
	}
	last := c.byID[c.order[len(c.order)-1]]
	return now.Sub(last.cachedAt) >= c.ttl
}

// ResolveID resolves a full or partial (prefix) container id. A partial
// match is accepted only if it is unique, to avoid ambiguity (spec.md
// §4.7).
func (c *containerCache) ResolveID(partial string) (dockerapi.ContainerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.byID[partial]; ok {
		return entry.info, true
	}
	var match dockerapi.ContainerInfo
	count := 0
	for id, entry := range c.byID {
		if strings.HasPrefix(id, partial) {
			match = entry.info
			count++
			if count > 1 {
				return dockerapi.ContainerInfo{}, false
			}
		}
	}
	return match, count == 1
}

// All returns a snapshot of every cached ContainerInfo.
func (c *containerCache) All() []dockerapi.ContainerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]dockerapi.ContainerInfo, 0, len(c.byID))
	for _, entry := range c.byID {
		out = append(out, entry.info)
	}
	return out
}
