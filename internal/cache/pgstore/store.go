// Package pgstore is the Postgres cache store adapter. It owns all
// persistence of cache rows, query metrics and cache metadata; it
// carries no routing or TTL logic of its own.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/core/observability"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the adapter
// works inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter opens the transaction used by the expiry sweep.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db  DBTX
	tx  TxStarter
	log *slog.Logger
}

var _ cache.Store = (*Store)(nil)

// New builds a store over a pgx pool.
func New(pool *pgxpool.Pool, log *slog.Logger) *Store {
	return &Store{db: pool, tx: pool, log: log}
}

// NewWithDB wires explicit query and transaction seams; used by tests.
func NewWithDB(db DBTX, tx TxStarter, log *slog.Logger) *Store {
	return &Store{db: db, tx: tx, log: log}
}

// GetCached returns the newest non-expired row for a fingerprint, or
// cache.ErrNotFound on the steady-state miss.
func (s *Store) GetCached(ctx context.Context, table cache.Table, fp string) (*cache.Entry, error) {
	d, err := defFor(table)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e := &cache.Entry{}
	err = s.db.QueryRow(ctx, d.selectSQL(), fp).Scan(
		&e.ID, &e.CacheKey, &e.Fingerprint, &e.Data,
		&e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt, &e.HitCount,
	)
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("cache get %s: %w", table, err)
	}
	return e, nil
}

// Upsert inserts or refreshes the row for a cache key. The conflict
// path replaces data and expiry but preserves hit_count and created_at.
func (s *Store) Upsert(ctx context.Context, table cache.Table, row cache.Upsert) error {
	d, err := defFor(table)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.db.Exec(ctx, d.upsertSQL(), d.upsertArgs(row)...)
	observability.ObserveCacheOp("upsert", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache upsert %s key=%s: %w", table, row.CacheKey, err)
	}
	return nil
}

// IncrementHit bumps a row's hit counter. Best-effort: the caller may
// log and discard the error; it must never block the read path.
func (s *Store) IncrementHit(ctx context.Context, table cache.Table, id int64) error {
	d, err := defFor(table)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.db.Exec(ctx, d.incrementSQL(), id)
	observability.ObserveCacheOp("increment_hit", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache increment hit %s id=%d: %w", table, id, err)
	}
	return nil
}

// RecordMetric appends one query execution record. Best-effort:
// metrics are observability and never allowed to affect the data path.
func (s *Store) RecordMetric(ctx context.Context, m cache.Metric) error {
	var filters any
	if m.Filters != nil {
		b, err := json.Marshal(m.Filters)
		if err != nil {
			return fmt.Errorf("marshal metric filters: %w", err)
		}
		filters = b
	}
	var userID any
	if m.UserID != "" {
		userID = m.UserID
	}

	start := time.Now()
	_, err := s.db.Exec(ctx, `INSERT INTO forecast_cache.query_metrics
		(query_fingerprint, query_type, execution_time_ms, data_source, cache_hit, error_occurred, user_id, filters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.Fingerprint, m.QueryType, m.ExecutionTimeMS, m.DataSource,
		m.CacheHit, m.ErrorOccurred, userID, filters,
	)
	observability.ObserveCacheOp("record_metric", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("record query metric: %w", err)
	}
	return nil
}

// ClearExpired deletes dead rows from both cache tables in one
// transaction, so stats never observe a half-cleared state. Idempotent
// and safe to run concurrently with live traffic.
func (s *Store) ClearExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		observability.ObserveCacheOp("clear_expired", err, time.Since(start).Seconds())
		return 0, fmt.Errorf("begin expiry sweep: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var removed int64
	for _, table := range []cache.Table{cache.TableSummary, cache.TableTimeseries} {
		d, derr := defFor(table)
		if derr != nil {
			return 0, derr
		}
		tag, eerr := tx.Exec(ctx, d.clearExpiredSQL())
		if eerr != nil {
			observability.ObserveCacheOp("clear_expired", eerr, time.Since(start).Seconds())
			return 0, fmt.Errorf("sweep %s: %w", table, eerr)
		}
		removed += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		observability.ObserveCacheOp("clear_expired", err, time.Since(start).Seconds())
		return 0, fmt.Errorf("commit expiry sweep: %w", err)
	}
	observability.ObserveCacheOp("clear_expired", nil, time.Since(start).Seconds())
	return removed, nil
}

// DeleteByState removes live rows tagged with any of the given states
// from both cache tables, within one transaction. Used when an upstream
// refresh invalidates data before its TTL.
func (s *Store) DeleteByState(ctx context.Context, states []string) (int64, error) {
	if len(states) == 0 {
		return 0, nil
	}
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin state invalidation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var removed int64
	for _, table := range []cache.Table{cache.TableSummary, cache.TableTimeseries} {
		d, derr := defFor(table)
		if derr != nil {
			return 0, derr
		}
		tag, eerr := tx.Exec(ctx, d.deleteByStateSQL(), states)
		if eerr != nil {
			return 0, fmt.Errorf("invalidate %s: %w", table, eerr)
		}
		removed += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit state invalidation: %w", err)
	}
	return removed, nil
}

// RecordMetadata upserts a named service-level metric into
// cache_metadata. Best-effort.
func (s *Store) RecordMetadata(ctx context.Context, name, category string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", name, err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO forecast_cache.cache_metadata
		(metric_name, metric_value, category)
		VALUES ($1, $2, $3)`,
		name, b, category,
	)
	if err != nil {
		return fmt.Errorf("record metadata %s: %w", name, err)
	}
	return nil
}
