package hotcold

import (
	"testing"
	"time"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

var fixedNow = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format("2006-01-02")
}

func TestUseHotPath(t *testing.T) {
	r := Router{Now: func() time.Time { return fixedNow }}

	tests := []struct {
		name      string
		queryType string
		filters   forecast.QueryFilters
		want      bool
	}{
		{"summary always hot", forecast.QueryTypeSummary, forecast.QueryFilters{}, true},
		{"summary hot with stale range", forecast.QueryTypeSummary,
			forecast.QueryFilters{StartDate: daysAgo(90), EndDate: daysAgo(60)}, true},
		{"execute always cold", forecast.QueryTypeExecute, forecast.QueryFilters{}, false},
		{"execute cold despite popular state", forecast.QueryTypeExecute,
			forecast.QueryFilters{State: []string{"CA"}, Limit: 10}, false},
		{"recent range hot", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(5)}, true},
		{"boundary of recent window hot", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(30)}, true},
		{"stale range cold", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(31)}, false},
		{"stale range rescued by popular state", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(45), State: []string{"ca"}}, true},
		{"stale range rescued by small limit", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(45), Limit: 50}, true},
		{"stale range with big limit stays cold", forecast.QueryTypeByDate,
			forecast.QueryFilters{StartDate: daysAgo(45), Limit: 500}, false},
		{"popular state hot", forecast.QueryTypeData,
			forecast.QueryFilters{State: []string{"TX"}}, true},
		{"unpopular state defaults hot", forecast.QueryTypeData,
			forecast.QueryFilters{State: []string{"WY"}}, true},
		{"small limit hot", forecast.QueryTypeData,
			forecast.QueryFilters{Limit: 50}, true},
		{"no filters default hot", forecast.QueryTypeData, forecast.QueryFilters{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.UseHotPath(tc.queryType, tc.filters); got != tc.want {
				t.Fatalf("UseHotPath(%s, %+v) = %v, want %v", tc.queryType, tc.filters, got, tc.want)
			}
		})
	}
}

func TestUseHotPath_DefaultClock(t *testing.T) {
	var r Router
	if !r.UseHotPath(forecast.QueryTypeSummary, forecast.QueryFilters{}) {
		t.Fatalf("zero-value router must still classify summaries hot")
	}
}
