// Package keys derives cache keys from query fingerprints. The prefix
// namespaces the key by query type and selects which physical table a
// write targets; uniqueness comes from the fingerprint alone.
package keys

import (
	"strings"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/cache/fingerprint"
	"github.com/demandplan/forecast-cache/internal/forecast"
)

const (
	PrefixSummary    = "forecast:summary"
	PrefixTimeseries = "forecast:timeseries"
	PrefixDetailed   = "forecast:detailed"
)

// Prefix returns the cache-key namespace for a query type.
func Prefix(queryType string) string {
	switch queryType {
	case forecast.QueryTypeSummary:
		return PrefixSummary
	case forecast.QueryTypeByDate:
		return PrefixTimeseries
	default:
		return PrefixDetailed
	}
}

// Key returns the full cache key: namespace prefix plus the strong
// fingerprint of the query.
func Key(queryType string, filters forecast.QueryFilters) string {
	return Prefix(queryType) + ":" + fingerprint.Strong(queryType, filters)
}

// TableFor maps a query type to the physical cache table its writes
// land in. Only summary aggregates go to the summary table; everything
// else, detailed results included, shares the timeseries table.
func TableFor(queryType string) cache.Table {
	if strings.Contains(queryType, "summary") {
		return cache.TableSummary
	}
	return cache.TableTimeseries
}
