// Package pgsource implements the forecast data source over the
// forecast_data table in Postgres.
package pgsource

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/demandplan/forecast-cache/internal/cache/pgstore"
	"github.com/demandplan/forecast-cache/internal/forecast"
	"github.com/demandplan/forecast-cache/internal/source"
)

// ErrQueryNotAllowed rejects free-form queries that are not a single
// SELECT statement.
var ErrQueryNotAllowed = errors.New("only SELECT queries are allowed")

// free-form queries may say "forecast"; the physical table is
// forecast_data
var forecastTableRE = regexp.MustCompile(`(?i)\bforecast\b`)

type Source struct {
	db pgstore.DBTX
}

var _ source.Interface = (*Source)(nil)

func New(db pgstore.DBTX) *Source {
	return &Source{db: db}
}

func (s *Source) ForecastSummary(ctx context.Context, state string) ([]forecast.SummaryRow, error) {
	q := `SELECT
			state,
			COUNT(*) AS record_count,
			AVG(y_50) AS avg_forecast,
			MIN(y_05) AS min_forecast,
			MAX(y_95) AS max_forecast
		FROM forecast_data`
	var args []any
	if state != "" {
		q += ` WHERE state = $1`
		args = append(args, strings.ToUpper(state))
	}
	q += ` GROUP BY state ORDER BY state`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("forecast summary query: %w", err)
	}
	defer rows.Close()

	var out []forecast.SummaryRow
	for rows.Next() {
		var r forecast.SummaryRow
		if err := rows.Scan(&r.State, &r.RecordCount, &r.AvgForecast, &r.MinForecast, &r.MaxForecast); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return out, nil
}

func (s *Source) ForecastByDate(ctx context.Context, startDate, endDate, state string) ([]forecast.TimeseriesRow, error) {
	where, args := buildDateWhere(startDate, endDate, state)
	q := `SELECT business_date::text AS business_date, AVG(y_50) AS avg_forecast
		FROM forecast_data` + where + `
		GROUP BY business_date
		ORDER BY business_date`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("forecast by date query: %w", err)
	}
	defer rows.Close()

	var out []forecast.TimeseriesRow
	for rows.Next() {
		var r forecast.TimeseriesRow
		if err := rows.Scan(&r.BusinessDate, &r.AvgForecast); err != nil {
			return nil, fmt.Errorf("scan timeseries row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeseries rows: %w", err)
	}
	return out, nil
}

func (s *Source) ForecastData(ctx context.Context, filters forecast.QueryFilters) (*forecast.QueryResponse, error) {
	where, args := buildDataWhere(filters.Normalize())
	q := `SELECT
			restaurant_id::text,
			inventory_item_id::text,
			business_date::text,
			state,
			y_05::text,
			y_50::text,
			y_95::text
		FROM forecast_data` + where + `
		ORDER BY business_date DESC, restaurant_id, inventory_item_id`
	if filters.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, filters.Limit)
	}
	return s.queryResponse(ctx, q, args,
		[]string{"restaurant_id", "inventory_item_id", "business_date", "state", "y_05", "y_50", "y_95"})
}

// ExecuteQuery runs a guarded free-form SELECT. The logical table name
// "forecast" is rewritten to the physical forecast_data.
func (s *Source) ExecuteQuery(ctx context.Context, query string) (*forecast.QueryResponse, error) {
	clean := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(clean, "select") || strings.Contains(clean, ";") {
		return nil, ErrQueryNotAllowed
	}
	rewritten := forecastTableRE.ReplaceAllString(query, "forecast_data")

	rows, err := s.db.Query(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	res := &forecast.QueryResponse{Columns: cols, Rows: [][]string{}}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read query row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				continue
			}
			row[i] = fmt.Sprint(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return res, nil
}

func (s *Source) queryResponse(ctx context.Context, q string, args []any, cols []string) (*forecast.QueryResponse, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("forecast data query: %w", err)
	}
	defer rows.Close()

	res := &forecast.QueryResponse{Columns: cols, Rows: [][]string{}}
	dest := make([]any, len(cols))
	vals := make([]*string, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan data row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			if v != nil {
				row[i] = *v
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data rows: %w", err)
	}
	return res, nil
}

func buildDateWhere(startDate, endDate, state string) (string, []any) {
	var conds []string
	var args []any
	n := 0
	if startDate != "" {
		n++
		conds = append(conds, fmt.Sprintf("business_date >= $%d", n))
		args = append(args, startDate)
	}
	if endDate != "" {
		n++
		conds = append(conds, fmt.Sprintf("business_date <= $%d", n))
		args = append(args, endDate)
	}
	if state != "" {
		n++
		conds = append(conds, fmt.Sprintf("state = $%d", n))
		args = append(args, strings.ToUpper(state))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildDataWhere(f forecast.QueryFilters) (string, []any) {
	var conds []string
	var args []any
	n := 0
	if len(f.State) > 0 {
		n++
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", n))
		args = append(args, f.State)
	}
	if f.RestaurantID != 0 {
		n++
		conds = append(conds, fmt.Sprintf("restaurant_id = $%d", n))
		args = append(args, f.RestaurantID)
	}
	if f.InventoryItemID != 0 {
		n++
		conds = append(conds, fmt.Sprintf("inventory_item_id = $%d", n))
		args = append(args, f.InventoryItemID)
	}
	if f.StartDate != "" {
		n++
		conds = append(conds, fmt.Sprintf("business_date >= $%d", n))
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		n++
		conds = append(conds, fmt.Sprintf("business_date <= $%d", n))
		args = append(args, f.EndDate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
