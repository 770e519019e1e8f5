package pgsource

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

type recordingDB struct {
	sql  string
	args []any
}

func (r *recordingDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (r *recordingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.sql = sql
	r.args = args
	return nil, errors.New("stop here")
}

func (r *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func TestExecuteQuery_GuardsNonSelect(t *testing.T) {
	s := New(&recordingDB{})
	tests := []string{
		"DELETE FROM forecast",
		"update forecast set y_50 = 0",
		"SELECT 1; DROP TABLE forecast_data",
		"",
	}
	for _, q := range tests {
		if _, err := s.ExecuteQuery(context.Background(), q); !errors.Is(err, ErrQueryNotAllowed) {
			t.Fatalf("query %q: expected ErrQueryNotAllowed, got %v", q, err)
		}
	}
}

func TestExecuteQuery_RewritesLogicalTable(t *testing.T) {
	db := &recordingDB{}
	s := New(db)

	_, _ = s.ExecuteQuery(context.Background(), "SELECT state FROM forecast WHERE state = 'CA'")
	if !strings.Contains(db.sql, "FROM forecast_data") {
		t.Fatalf("logical table not rewritten: %s", db.sql)
	}
	if strings.Contains(db.sql, "forecast_data_data") {
		t.Fatalf("rewrite must not double-substitute: %s", db.sql)
	}
}

func TestForecastSummary_ScopesToState(t *testing.T) {
	db := &recordingDB{}
	s := New(db)

	_, _ = s.ForecastSummary(context.Background(), "ca")
	if !strings.Contains(db.sql, "WHERE state = $1") {
		t.Fatalf("state filter missing: %s", db.sql)
	}
	if len(db.args) != 1 || db.args[0] != "CA" {
		t.Fatalf("state must be upper-cased, args = %v", db.args)
	}

	_, _ = s.ForecastSummary(context.Background(), "")
	if strings.Contains(db.sql, "WHERE") {
		t.Fatalf("no state means no filter: %s", db.sql)
	}
}

func TestBuildDateWhere(t *testing.T) {
	where, args := buildDateWhere("2026-01-01", "2026-01-31", "tx")
	if where != " WHERE business_date >= $1 AND business_date <= $2 AND state = $3" {
		t.Fatalf("where = %q", where)
	}
	if len(args) != 3 || args[2] != "TX" {
		t.Fatalf("args = %v", args)
	}

	where, args = buildDateWhere("", "", "")
	if where != "" || args != nil {
		t.Fatalf("empty filters must produce no clause, got %q %v", where, args)
	}
}

func TestBuildDataWhere(t *testing.T) {
	f := forecast.QueryFilters{
		State:           []string{"CA", "TX"},
		RestaurantID:    7,
		InventoryItemID: 9,
		StartDate:       "2026-01-01",
	}
	where, args := buildDataWhere(f)
	if !strings.Contains(where, "state = ANY($1)") {
		t.Fatalf("multi-state filter must use ANY: %q", where)
	}
	if !strings.Contains(where, "restaurant_id = $2") || !strings.Contains(where, "inventory_item_id = $3") {
		t.Fatalf("id filters mis-numbered: %q", where)
	}
	if !strings.Contains(where, "business_date >= $4") {
		t.Fatalf("date bound mis-numbered: %q", where)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v", args)
	}
}

func TestForecastData_AppliesLimit(t *testing.T) {
	db := &recordingDB{}
	s := New(db)

	_, _ = s.ForecastData(context.Background(), forecast.QueryFilters{Limit: 25})
	if !strings.Contains(db.sql, "LIMIT 25") {
		t.Fatalf("limit missing: %s", db.sql)
	}

	_, _ = s.ForecastData(context.Background(), forecast.QueryFilters{})
	if strings.Contains(db.sql, "LIMIT") {
		t.Fatalf("zero limit must be unbounded: %s", db.sql)
	}
}
