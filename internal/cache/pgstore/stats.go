package pgstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/core/observability"
)

const statsSQL = `SELECT
		COUNT(*) FILTER (WHERE cache_hit = true) AS cache_hits,
		COUNT(*) AS total_queries,
		COALESCE(AVG(execution_time_ms), 0) AS avg_time
	FROM forecast_cache.query_metrics
	WHERE executed_at > NOW() - make_interval(hours => $1)`

const cacheSizeSQL = `SELECT
		(SELECT COUNT(*) FROM forecast_cache.summary_cache WHERE expires_at > NOW()) +
		(SELECT COUNT(*) FROM forecast_cache.timeseries_cache WHERE expires_at > NOW())`

// Stats aggregates the metrics table over the trailing window and
// counts live rows across both cache tables. Hit rate is a percentage
// rounded to two decimals; average response time is whole milliseconds.
func (s *Store) Stats(ctx context.Context, window time.Duration) (cache.Stats, error) {
	hours := int(window.Hours())
	if hours <= 0 {
		hours = 24
	}

	start := time.Now()
	var (
		hits    int64
		total   int64
		avgTime float64
	)
	err := s.db.QueryRow(ctx, statsSQL, hours).Scan(&hits, &total, &avgTime)
	if err != nil {
		observability.ObserveCacheOp("stats", err, time.Since(start).Seconds())
		return cache.Stats{}, fmt.Errorf("query metrics stats: %w", err)
	}

	var size int64
	err = s.db.QueryRow(ctx, cacheSizeSQL).Scan(&size)
	observability.ObserveCacheOp("stats", err, time.Since(start).Seconds())
	if err != nil {
		return cache.Stats{}, fmt.Errorf("query cache size: %w", err)
	}

	var hitRate float64
	if total > 0 {
		hitRate = math.Round(float64(hits)/float64(total)*100*100) / 100
	}

	return cache.Stats{
		HitRate:         hitRate,
		TotalQueries:    total,
		AvgResponseTime: int64(math.Round(avgTime)),
		CacheSize:       size,
	}, nil
}
