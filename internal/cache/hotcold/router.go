// Package hotcold decides, per query, whether the cache is consulted
// at all (hot path) or bypassed (cold path).
//
// The router is a heuristic, not a guarantee: a false hot
// classification only costs an unnecessary cache write. Entries encode
// their own expiry and callers fall through to the underlying source on
// a miss, so correctness never depends on the routing decision.
package hotcold

import (
	"sort"
	"time"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

// recentWindowDays bounds the trailing window considered "recent" for
// date-range queries.
const recentWindowDays = 30

// popularStates always route hot; these dashboards are refreshed
// constantly.
var popularStates = map[string]struct{}{
	"CA": {}, "TX": {}, "FL": {}, "NY": {}, "IL": {},
}

// PopularStates returns the always-hot states in sorted order, for
// callers that want to warm those views up front.
func PopularStates() []string {
	out := make([]string, 0, len(popularStates))
	for s := range popularStates {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Router decides hot vs cold. Now is injectable for tests; nil means
// time.Now.
type Router struct {
	Now func() time.Time
}

func (r Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// UseHotPath reports whether a query should consult the cache first.
// Free-form query execution is always cold: caching arbitrary query
// text is a correctness risk that outweighs any benefit.
func (r Router) UseHotPath(queryType string, filters forecast.QueryFilters) bool {
	switch queryType {
	case forecast.QueryTypeSummary:
		return true
	case forecast.QueryTypeExecute:
		return false
	}

	// A date-range query outside the trailing window goes cold unless a
	// later rule grants it hot.
	staleRange := false
	if start, ok := filters.ParsedStartDate(); ok && queryType == forecast.QueryTypeByDate {
		days := r.now().Sub(start).Hours() / 24
		if days < 0 {
			days = -days
		}
		if days <= recentWindowDays {
			return true
		}
		staleRange = true
	}

	for _, s := range filters.Normalize().State {
		if _, ok := popularStates[s]; ok {
			return true
		}
	}

	if filters.Limit > 0 && filters.Limit <= 50 {
		return true
	}

	return !staleRange
}
