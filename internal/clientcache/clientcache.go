// Package clientcache is a small in-process result cache for callers
// that sit in front of the HTTP API. It is keyed by the weak rolling
// fingerprint, a separate identifier space from the server-side
// cryptographic fingerprint; the two are never compared.
package clientcache

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/demandplan/forecast-cache/internal/cache/fingerprint"
	"github.com/demandplan/forecast-cache/internal/forecast"
)

const (
	DefaultSize = 10
	DefaultTTL  = 5 * time.Minute
)

// View names one query a caller wants kept warm.
type View struct {
	QueryType string
	Filters   forecast.QueryFilters
}

// Loader fetches a fresh payload for a view on preload.
type Loader func(ctx context.Context, v View) ([]byte, error)

type Cache struct {
	lru *lru.LRU[string, []byte]
	log *slog.Logger
}

func New(size int, ttl time.Duration, log *slog.Logger) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: lru.NewLRU[string, []byte](size, nil, ttl),
		log: log,
	}
}

// Key computes the weak fingerprint used as the cache key.
func Key(queryType string, filters forecast.QueryFilters) string {
	return fingerprint.Weak(queryType, filters.Normalize())
}

func (c *Cache) Get(queryType string, filters forecast.QueryFilters) ([]byte, bool) {
	return c.lru.Get(Key(queryType, filters))
}

func (c *Cache) Set(queryType string, filters forecast.QueryFilters, payload []byte) {
	c.lru.Add(Key(queryType, filters), payload)
}

func (c *Cache) Remove(queryType string, filters forecast.QueryFilters) {
	c.lru.Remove(Key(queryType, filters))
}

func (c *Cache) Purge() { c.lru.Purge() }

func (c *Cache) Len() int { return c.lru.Len() }

// CommonViews lists the views worth keeping warm at startup: the
// overall summary plus one summary per given state.
func CommonViews(states []string) []View {
	views := []View{{QueryType: forecast.QueryTypeSummary}}
	for _, s := range states {
		views = append(views, View{
			QueryType: forecast.QueryTypeSummary,
			Filters:   forecast.QueryFilters{State: []string{s}},
		})
	}
	return views
}

// PreloadCommonViews warms the cache with the given views. Individual
// load failures are logged and skipped; preloading is opportunistic.
func (c *Cache) PreloadCommonViews(ctx context.Context, load Loader, views []View) int {
	warmed := 0
	for _, v := range views {
		if ctx.Err() != nil {
			return warmed
		}
		payload, err := load(ctx, v)
		if err != nil {
			c.log.Warn("preload skipped", "query_type", v.QueryType, "err", err)
			continue
		}
		c.lru.Add(Key(v.QueryType, v.Filters), payload)
		warmed++
	}
	return warmed
}
