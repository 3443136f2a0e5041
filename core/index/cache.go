package index

import (
	"github.com/dgraph-io/ristretto"
)

// resultCache caches full (non-partial) search results keyed by the
// composed query text plus execution flags. It is cleared wholesale on any
// mutation. A nil *resultCache is a valid no-op cache.
type resultCache struct {
	cache *ristretto.Cache
}

func newResultCache(cfg ResultCacheConfig) (*resultCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &resultCache{cache: cache}, nil
}

func (c *resultCache) Get(key string) (*SearchResult, bool) {
	if c == nil {
		return nil, false
	}
	value, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	result, ok := value.(*SearchResult)
	return result, ok
}

// Set stores a result. Cost is the summary count so large result sets are
// evicted first.
func (c *resultCache) Set(key string, result *SearchResult) {
	if c == nil {
		return
	}
	cost := int64(len(result.Summaries))
	if cost == 0 {
		cost = 1
	}
	c.cache.Set(key, result, cost)
}

func (c *resultCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

func (c *resultCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
