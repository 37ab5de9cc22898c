package metadata

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"clipscope/internal/metrics"
	"clipscope/internal/model"
)

// Cache keeps successful resolutions keyed by metadata URI. Only
// content-addressed URIs (ipfs:// and inline data:) are stored; an http(s)
// document can change, so those are fetched every time.
type Cache struct {
	lru *lru.Cache
}

func NewCache(size int) (*Cache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &Cache{lru: cache}, nil
}

func (c *Cache) Get(uri string) (model.ResolvedMetadata, bool) {
	v, ok := c.lru.Get(uri)
	if !ok {
		return model.ResolvedMetadata{}, false
	}
	return v.(model.ResolvedMetadata), true
}

// Add stores meta under uri when uri is content-addressed and reports whether
// it did.
func (c *Cache) Add(uri string, meta model.ResolvedMetadata) bool {
	if !Immutable(uri) {
		return false
	}
	c.lru.Add(uri, meta)
	return true
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// Immutable reports whether the document behind uri cannot change.
func Immutable(uri string) bool {
	uri = strings.TrimSpace(uri)
	return strings.HasPrefix(uri, ipfsScheme) || strings.HasPrefix(uri, dataScheme)
}

type cachedResolver struct {
	next  Resolver
	cache *Cache
}

// Cached serves hits from cache and stores successful misses. Failures are
// not cached.
func Cached(next Resolver, cache *Cache) Resolver {
	return &cachedResolver{next: next, cache: cache}
}

func (r *cachedResolver) Resolve(ctx context.Context, uri string) (model.ResolvedMetadata, bool) {
	if meta, ok := r.cache.Get(uri); ok {
		metrics.ObserveResolution(metrics.OutcomeCacheHit)
		return meta, true
	}

	meta, ok := r.next.Resolve(ctx, uri)
	if ok {
		r.cache.Add(uri, meta)
	}
	return meta, ok
}
