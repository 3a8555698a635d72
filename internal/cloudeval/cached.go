package cloudeval

import (
	"context"
	"sync"

	"github.com/movegrade/movegrade/internal/polyglot"
)

// CachedEvaluator wraps another evaluator with an in-memory cache keyed
// by position hash. This reduces API calls for repeated positions, which
// game analysis produces constantly (every retry, every re-grade).
// Misses are cached too: a position the cloud does not know stays
// unknown for the lifetime of this process.
type CachedEvaluator struct {
	inner   Evaluator
	mu      sync.RWMutex
	cache   map[uint64]Result
	maxSize int
	hits    uint64
	misses  uint64
}

// NewCachedEvaluator creates a cached evaluator wrapping inner.
func NewCachedEvaluator(inner Evaluator, cacheSize int) *CachedEvaluator {
	return &CachedEvaluator{
		inner:   inner,
		cache:   make(map[uint64]Result, cacheSize),
		maxSize: cacheSize,
	}
}

func (ce *CachedEvaluator) Lookup(ctx context.Context, fen string) Result {
	key, err := polyglot.KeyFromFEN(fen)
	if err != nil {
		// Unhashable position; pass through uncached.
		return ce.inner.Lookup(ctx, fen)
	}

	ce.mu.RLock()
	result, ok := ce.cache[key]
	ce.mu.RUnlock()
	if ok {
		ce.mu.Lock()
		ce.hits++
		ce.mu.Unlock()
		return result
	}

	result = ce.inner.Lookup(ctx, fen)

	ce.mu.Lock()
	ce.misses++
	if len(ce.cache) >= ce.maxSize {
		// Simple eviction: clear half the cache.
		i := 0
		for k := range ce.cache {
			if i >= ce.maxSize/2 {
				break
			}
			delete(ce.cache, k)
			i++
		}
	}
	ce.cache[key] = result
	ce.mu.Unlock()

	return result
}

// HitRate returns the cache hit rate as a percentage.
func (ce *CachedEvaluator) HitRate() float64 {
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	total := ce.hits + ce.misses
	if total == 0 {
		return 0
	}
	return float64(ce.hits) / float64(total) * 100
}

// CacheSize returns the current number of cached entries.
func (ce *CachedEvaluator) CacheSize() int {
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	return len(ce.cache)
}

// Clear clears the cache and its counters.
func (ce *CachedEvaluator) Clear() {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.cache = make(map[uint64]Result, ce.maxSize)
	ce.hits = 0
	ce.misses = 0
}
