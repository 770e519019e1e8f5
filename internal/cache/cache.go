// Package cache defines the shared contract between the hybrid
// orchestrator and the cache store adapter: table identities, row and
// metric shapes, and the adapter interface.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

// Table names one of the two physical cache tables.
type Table string

const (
	TableSummary    Table = "summary_cache"
	TableTimeseries Table = "timeseries_cache"
)

// Data source tags recorded per metric row.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
	SourceAthena   = "athena"
)

// ErrNotFound is the steady-state cache miss: no live row matched the
// fingerprint. It is expected, not exceptional.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one live cache row.
type Entry struct {
	ID          int64
	CacheKey    string
	Fingerprint string
	Data        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	HitCount    int64
}

// Upsert carries everything a cache write needs. The update path of the
// insert-or-update refreshes data, updated_at and expires_at only;
// hit_count and created_at survive.
type Upsert struct {
	CacheKey    string
	Fingerprint string
	State       string
	StartDate   string
	EndDate     string
	Data        []byte
	ExpiresAt   time.Time
}

// Metric is one query execution record, append-only.
type Metric struct {
	Fingerprint     string
	QueryType       string
	ExecutionTimeMS int64
	DataSource      string
	CacheHit        bool
	ErrorOccurred   bool
	UserID          string
	Filters         *forecast.QueryFilters
}

// Stats aggregates the metrics table over a trailing window plus the
// live row count across both cache tables.
type Stats struct {
	HitRate         float64 `json:"hitRate"`
	TotalQueries    int64   `json:"totalQueries"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	CacheSize       int64   `json:"cacheSize"`
}

// Store is the cache store adapter. It owns all persistence of cache
// rows and query metrics; no other component writes those tables.
//
// IncrementHit and RecordMetric are best-effort by contract: callers
// are permitted to log and discard their errors, and must never let
// them fail the data path.
type Store interface {
	GetCached(ctx context.Context, table Table, fingerprint string) (*Entry, error)
	Upsert(ctx context.Context, table Table, row Upsert) error
	IncrementHit(ctx context.Context, table Table, id int64) error
	RecordMetric(ctx context.Context, m Metric) error
	ClearExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context, window time.Duration) (Stats, error)
}
