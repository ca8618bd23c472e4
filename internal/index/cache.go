package index

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// QueryCache memoizes ranked retrieval results for a short TTL, keyed by
// the case/whitespace-folded query text. Entries carry the index generation
// they were computed against; a re-indexed corpus invalidates them.
type QueryCache struct {
	lru *expirable.LRU[string, cachedResult]
}

type cachedResult struct {
	result     *model.RetrievalResult
	confidence float64
	generation uint64
}

// NewQueryCache creates a query cache with the given capacity and TTL.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QueryCache{
		lru: expirable.NewLRU[string, cachedResult](size, nil, ttl),
	}
}

// NormalizeQuery folds case and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns a cached result when one exists for the current index
// generation.
func (c *QueryCache) Get(normalized string, generation uint64) (*model.RetrievalResult, float64, bool) {
	cached, ok := c.lru.Get(normalized)
	if !ok || cached.generation != generation {
		metrics.QueryCacheTotal.WithLabelValues("miss").Inc()
		return nil, 0, false
	}
	metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
	return cached.result, cached.confidence, true
}

// Put stores a result for the given index generation.
func (c *QueryCache) Put(normalized string, generation uint64, result *model.RetrievalResult, confidence float64) {
	c.lru.Add(normalized, cachedResult{
		result:     result,
		confidence: confidence,
		generation: generation,
	})
}

// Purge drops all entries.
func (c *QueryCache) Purge() {
	c.lru.Purge()
}
