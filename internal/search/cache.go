package search

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes a provider's results per normalized query. Failed
// searches are not cached.
type Cached struct {
	next  Provider
	cache *lru.Cache[string, Results]
}

// NewCached wraps next with an LRU cache holding size queries.
func NewCached(next Provider, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Results](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Search(ctx context.Context, query string) (Results, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}
	res, err := c.next.Search(ctx, query)
	if err != nil {
		return Results{}, err
	}
	c.cache.Add(key, res)
	return res, nil
}

// Purge drops every cached result, e.g. after a catalog import.
func (c *Cached) Purge() {
	c.cache.Purge()
}
