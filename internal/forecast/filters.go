// Package forecast defines the query filter and result types shared by
// the cache subsystem and the underlying forecast data source.
package forecast

import (
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// QueryFilters is a normalized description of a forecast query's
// constraints. Zero values mean "filter not applied".
type QueryFilters struct {
	State           []string `json:"state,omitempty"`
	StartDate       string   `json:"startDate,omitempty"`
	EndDate         string   `json:"endDate,omitempty"`
	RestaurantID    int64    `json:"restaurantId,omitempty"`
	InventoryItemID int64    `json:"inventoryItemId,omitempty"`
	Limit           int      `json:"limit,omitempty"`
}

// Normalize returns a copy with states upper-cased and sorted, so that
// semantically equal filter sets compare and fingerprint identically.
func (f QueryFilters) Normalize() QueryFilters {
	out := f
	if len(f.State) > 0 {
		states := make([]string, 0, len(f.State))
		for _, s := range f.State {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				states = append(states, s)
			}
		}
		sort.Strings(states)
		out.State = states
	}
	return out
}

// DateSpanDays returns the inclusive span between StartDate and EndDate
// in whole days, and whether both bounds are present and parseable.
func (f QueryFilters) DateSpanDays() (float64, bool) {
	if f.StartDate == "" || f.EndDate == "" {
		return 0, false
	}
	start, err := time.Parse(dateLayout, f.StartDate)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(dateLayout, f.EndDate)
	if err != nil {
		return 0, false
	}
	d := end.Sub(start).Hours() / 24
	if d < 0 {
		d = -d
	}
	return d, true
}

// ParsedStartDate returns the parsed start date, if present and valid.
func (f QueryFilters) ParsedStartDate() (time.Time, bool) {
	if f.StartDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, f.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FirstState returns the first state tag, for cache rows that persist a
// single representative state alongside the payload.
func (f QueryFilters) FirstState() string {
	if len(f.State) == 0 {
		return ""
	}
	return f.State[0]
}
