package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// productSource is anything that can produce a fresh product list.
type productSource interface {
	Fetch(ctx context.Context) ([]Product, error)
}

type refreshResult struct {
	products []Product
	source   Source
}

type snapshot struct {
	products []Product
	fetched  time.Time
}

// ProductCache holds the last successful product fetch. A snapshot younger
// than ttl is served without touching the upstream; an older one is only
// served when a refresh attempt fails.
type ProductCache struct {
	src   productSource
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu   sync.Mutex
	snap *snapshot
}

func NewProductCache(src productSource, ttl time.Duration) *ProductCache {
	return &ProductCache{src: src, ttl: ttl, now: time.Now}
}

// Get returns the current product list and where it came from. Concurrent
// callers that miss share one in-flight upstream fetch.
func (c *ProductCache) Get(ctx context.Context) ([]Product, Source, error) {
	if products, ok := c.fresh(); ok {
		return products, SourceCache, nil
	}

	v, err, _ := c.group.Do("products", func() (interface{}, error) {
		// a refresh may have completed between the fast path and this call
		if products, ok := c.fresh(); ok {
			return refreshResult{products, SourceCache}, nil
		}
		// shared by every waiter; detached from the caller that started it
		products, err := c.src.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snap = &snapshot{products: products, fetched: c.now()}
		c.mu.Unlock()
		return refreshResult{products, SourceRemote}, nil
	})
	if err == nil {
		res := v.(refreshResult)
		return slices.Clone(res.products), res.source, nil
	}

	if errors.Is(err, ErrUpstreamUnavailable) {
		if stale, ok := c.stale(); ok {
			slog.Warn("serving stale products after refresh failure", "error", err, "items", len(stale))
			return stale, SourceCache, nil
		}
	}
	return nil, "", err
}

func (c *ProductCache) fresh() ([]Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil || c.now().Sub(c.snap.fetched) >= c.ttl {
		return nil, false
	}
	return slices.Clone(c.snap.products), true
}

func (c *ProductCache) stale() ([]Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, false
	}
	return slices.Clone(c.snap.products), true
}
