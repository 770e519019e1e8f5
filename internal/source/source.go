// Package source declares the underlying forecast data source the
// orchestrator queries on the cold path and on cache misses.
package source

import (
	"context"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

// Interface is the external collaborator boundary. Implementations are
// expected to honor context cancellation on every call.
type Interface interface {
	// ForecastSummary returns per-state aggregates, optionally scoped to
	// one state.
	ForecastSummary(ctx context.Context, state string) ([]forecast.SummaryRow, error)
	// ForecastByDate returns date-ordered average forecasts for an
	// inclusive date range, optionally scoped to one state.
	ForecastByDate(ctx context.Context, startDate, endDate, state string) ([]forecast.TimeseriesRow, error)
	// ForecastData returns raw filtered forecast rows.
	ForecastData(ctx context.Context, filters forecast.QueryFilters) (*forecast.QueryResponse, error)
	// ExecuteQuery runs a guarded free-form SELECT.
	ExecuteQuery(ctx context.Context, query string) (*forecast.QueryResponse, error)
}
