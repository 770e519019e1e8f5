package pgstore

import (
	"fmt"

	"github.com/demandplan/forecast-cache/internal/cache"
)

// tableDef describes one physical cache table. Both tables share the
// same read/sweep shape; the timeseries variant additionally persists
// the query's date range.
type tableDef struct {
	qualified string
	hasRange  bool
}

var tableDefs = map[cache.Table]tableDef{
	cache.TableSummary: {
		qualified: "forecast_cache.summary_cache",
	},
	cache.TableTimeseries: {
		qualified: "forecast_cache.timeseries_cache",
		hasRange:  true,
	},
}

func defFor(t cache.Table) (tableDef, error) {
	d, ok := tableDefs[t]
	if !ok {
		return tableDef{}, fmt.Errorf("unknown cache table %q", t)
	}
	return d, nil
}

func (d tableDef) selectSQL() string {
	return `SELECT id, cache_key, query_fingerprint, data, created_at, updated_at, expires_at, hit_count
		FROM ` + d.qualified + `
		WHERE query_fingerprint = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`
}

func (d tableDef) upsertSQL() string {
	if d.hasRange {
		return `INSERT INTO ` + d.qualified + `
			(cache_key, query_fingerprint, state, start_date, end_date, data, expires_at)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, '')::date, NULLIF($5, '')::date, $6, $7)
			ON CONFLICT (cache_key)
			DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = NOW(),
				expires_at = EXCLUDED.expires_at`
	}
	return `INSERT INTO ` + d.qualified + `
		(cache_key, query_fingerprint, state, data, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW(),
			expires_at = EXCLUDED.expires_at`
}

func (d tableDef) upsertArgs(row cache.Upsert) []any {
	if d.hasRange {
		return []any{row.CacheKey, row.Fingerprint, row.State, row.StartDate, row.EndDate, row.Data, row.ExpiresAt}
	}
	return []any{row.CacheKey, row.Fingerprint, row.State, row.Data, row.ExpiresAt}
}

func (d tableDef) incrementSQL() string {
	return `UPDATE ` + d.qualified + ` SET hit_count = hit_count + 1 WHERE id = $1`
}

func (d tableDef) clearExpiredSQL() string {
	return `DELETE FROM ` + d.qualified + ` WHERE expires_at <= NOW()`
}

func (d tableDef) deleteByStateSQL() string {
	return `DELETE FROM ` + d.qualified + ` WHERE state = ANY($1)`
}
