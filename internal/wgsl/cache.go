package wgsl

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gogpu/naga/ir"
)

// DefaultCacheSize is the soft limit of the lowered module cache.
const DefaultCacheSize = 64

// lowered is the result of lowering one source, failures included.
type lowered struct {
	module *ir.Module
	err    error
	atime  int64
}

// moduleCache maps WGSL source text to its lowered module. When it grows
// past its soft limit the least recently used quarter is dropped.
//
// moduleCache is safe for concurrent use.
type moduleCache struct {
	mu        sync.Mutex
	entries   map[string]*lowered
	softLimit int
	tick      int64
	hits      uint64
	misses    uint64
}

func newModuleCache(softLimit int) *moduleCache {
	return &moduleCache{
		entries:   make(map[string]*lowered),
		softLimit: softLimit,
	}
}

var modules = newModuleCache(DefaultCacheSize)

// getOrLower returns the lowered module of source, lowering it on a miss.
// Lowering runs under the lock so concurrent shader creation from one
// source lowers it once.
func (c *moduleCache) getOrLower(source string, lower func(string) (*ir.Module, error)) (*ir.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[source]; ok {
		c.hits++
		e.atime = c.tick
		return e.module, e.err
	}
	c.misses++
	m, err := lower(source)
	c.entries[source] = &lowered{module: m, err: err, atime: c.tick}
	if c.softLimit > 0 && len(c.entries) > c.softLimit {
		c.evictOldest()
	}
	return m, err
}

// evictOldest removes the least recently used entries until three quarters
// of the soft limit remain. Caller must hold c.mu.
func (c *moduleCache) evictOldest() {
	target := max(c.softLimit*3/4, 1)
	if len(c.entries) <= target {
		return
	}
	type aged struct {
		source string
		atime  int64
	}
	all := make([]aged, 0, len(c.entries))
	for src, e := range c.entries {
		all = append(all, aged{src, e.atime})
	}
	slices.SortFunc(all, func(a, b aged) int { return cmp.Compare(a.atime, b.atime) })
	for _, a := range all[:len(all)-target] {
		delete(c.entries, a.source)
	}
}

// CacheStats reports the lowered module cache counters.
type CacheStats struct {
	Len    int
	Hits   uint64
	Misses uint64
}

// Stats returns the counters of the shared module cache.
func Stats() CacheStats {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	return CacheStats{Len: len(modules.entries), Hits: modules.hits, Misses: modules.misses}
}

// ResetCache drops every cached module and zeroes the counters.
func ResetCache() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	modules.entries = make(map[string]*lowered)
	modules.tick, modules.hits, modules.misses = 0, 0, 0
}
