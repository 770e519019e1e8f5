// Package ttl computes cache lifetimes per query type and filter shape.
//
// Broad date ranges are assumed to be exploratory queries over data
// that may still be settling, so they cache more conservatively. Small
// bounded result sets are assumed to be dashboard queries re-issued
// frequently, so they cache longer.
package ttl

import (
	"time"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

// Base lifetimes by query type.
const (
	BaseSummary    = time.Hour
	BaseTimeseries = 30 * time.Minute
	BaseDetailed   = 15 * time.Minute
)

// Determine returns the cache lifetime for a query. Adjustments apply
// multiplicatively to the base, in order: date span over 30 days halves
// it, span over 7 days takes three quarters, and a row limit of at most
// 100 stretches it by half again.
func Determine(queryType string, filters forecast.QueryFilters) time.Duration {
	base := BaseDetailed
	switch queryType {
	case forecast.QueryTypeSummary:
		base = BaseSummary
	case forecast.QueryTypeByDate:
		base = BaseTimeseries
	}

	secs := int64(base / time.Second)
	if span, ok := filters.DateSpanDays(); ok {
		if span > 30 {
			secs = secs / 2
		} else if span > 7 {
			secs = secs * 3 / 4
		}
	}
	if filters.Limit > 0 && filters.Limit <= 100 {
		secs = secs * 3 / 2
	}
	return time.Duration(secs) * time.Second
}

// ExpiresAt adds a lifetime to now.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// Expired reports whether an expiry timestamp has passed.
func Expired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}
