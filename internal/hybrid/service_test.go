package hybrid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/cache/fingerprint"
	"github.com/demandplan/forecast-cache/internal/forecast"
)

type fakeStore struct {
	entries map[string]*cache.Entry
	getErr  error
	upserts []struct {
		table cache.Table
		row   cache.Upsert
	}
	upsertErr  error
	increments []int64
	incErr     error
	metrics    []cache.Metric
	metricErr  error
	getCalls   []cache.Table
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]*cache.Entry{}}
}

func (s *fakeStore) GetCached(_ context.Context, table cache.Table, fp string) (*cache.Entry, error) {
	s.getCalls = append(s.getCalls, table)
	if s.getErr != nil {
		return nil, s.getErr
	}
	if e, ok := s.entries[string(table)+":"+fp]; ok {
		return e, nil
	}
	return nil, cache.ErrNotFound
}

func (s *fakeStore) Upsert(_ context.Context, table cache.Table, row cache.Upsert) error {
	s.upserts = append(s.upserts, struct {
		table cache.Table
		row   cache.Upsert
	}{table, row})
	return s.upsertErr
}

func (s *fakeStore) IncrementHit(_ context.Context, _ cache.Table, id int64) error {
	s.increments = append(s.increments, id)
	return s.incErr
}

func (s *fakeStore) RecordMetric(_ context.Context, m cache.Metric) error {
	s.metrics = append(s.metrics, m)
	return s.metricErr
}

func (s *fakeStore) ClearExpired(context.Context) (int64, error) { return 0, nil }

func (s *fakeStore) Stats(context.Context, time.Duration) (cache.Stats, error) {
	return cache.Stats{}, nil
}

type fakeSource struct {
	summaryCalls int
	byDateCalls  int
	dataCalls    int
	execCalls    int
	err          error
	blockCtx     bool
}

func (f *fakeSource) ForecastSummary(ctx context.Context, _ string) ([]forecast.SummaryRow, error) {
	f.summaryCalls++
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []forecast.SummaryRow{{State: "CA", RecordCount: 2, AvgForecast: 10}}, nil
}

func (f *fakeSource) ForecastByDate(context.Context, string, string, string) ([]forecast.TimeseriesRow, error) {
	f.byDateCalls++
	if f.err != nil {
		return nil, f.err
	}
	return []forecast.TimeseriesRow{{BusinessDate: "2026-01-01", AvgForecast: 5}}, nil
}

func (f *fakeSource) ForecastData(context.Context, forecast.QueryFilters) (*forecast.QueryResponse, error) {
	f.dataCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &forecast.QueryResponse{Columns: []string{"state"}, Rows: [][]string{{"CA"}}}, nil
}

func (f *fakeSource) ExecuteQuery(context.Context, string) (*forecast.QueryResponse, error) {
	f.execCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &forecast.QueryResponse{Columns: []string{"one"}, Rows: [][]string{{"1"}}}, nil
}

func newService(store cache.Store, src *fakeSource, enabled bool) *Service {
	return New(Config{CacheEnabled: enabled}, store, src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func summaryFingerprint(state string) string {
	f := forecast.QueryFilters{State: []string{state}}.Normalize()
	return fingerprint.Strong(forecast.QueryTypeSummary, f)
}

func cachedSummary(t *testing.T, id int64) *cache.Entry {
	t.Helper()
	data, err := forecast.SummaryPayload([]forecast.SummaryRow{{State: "CA", RecordCount: 9}}).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &cache.Entry{ID: id, Fingerprint: summaryFingerprint("CA"), Data: data}
}

func TestGetForecastSummary_MissQueriesSourceAndWritesBack(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{}
	svc := newService(store, src, true)

	rows, err := svc.GetForecastSummary(context.Background(), "CA", "u1")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(rows) != 1 || rows[0].RecordCount != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if src.summaryCalls != 1 {
		t.Fatalf("source calls = %d, want 1", src.summaryCalls)
	}

	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}
	up := store.upserts[0]
	if up.table != cache.TableSummary {
		t.Fatalf("write table = %s", up.table)
	}
	if up.row.Fingerprint != summaryFingerprint("CA") {
		t.Fatalf("write fingerprint mismatch")
	}
	if up.row.State != "CA" {
		t.Fatalf("write state = %q", up.row.State)
	}
	if up.row.ExpiresAt.IsZero() {
		t.Fatalf("write must carry an expiry")
	}

	if len(store.metrics) != 1 {
		t.Fatalf("metrics = %d, want exactly 1", len(store.metrics))
	}
	m := store.metrics[0]
	if m.CacheHit || m.DataSource != cache.SourceDatabase || m.ErrorOccurred {
		t.Fatalf("miss metric = %+v", m)
	}
	if m.UserID != "u1" || m.Filters == nil {
		t.Fatalf("metric context = %+v", m)
	}
}

func TestGetForecastSummary_HitSkipsSourceAndIncrements(t *testing.T) {
	store := newFakeStore()
	entry := cachedSummary(t, 42)
	store.entries[string(cache.TableSummary)+":"+entry.Fingerprint] = entry
	src := &fakeSource{}
	svc := newService(store, src, true)

	rows, err := svc.GetForecastSummary(context.Background(), "CA", "")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(rows) != 1 || rows[0].RecordCount != 9 {
		t.Fatalf("must serve the cached payload, got %+v", rows)
	}
	if src.summaryCalls != 0 {
		t.Fatalf("hit must not query the source")
	}
	if len(store.increments) != 1 || store.increments[0] != 42 {
		t.Fatalf("hit must bump the row counter, got %v", store.increments)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("hit must not rewrite the cache")
	}

	if len(store.metrics) != 1 {
		t.Fatalf("metrics = %d, want exactly 1", len(store.metrics))
	}
	m := store.metrics[0]
	if !m.CacheHit || m.DataSource != cache.SourceCache {
		t.Fatalf("hit metric = %+v", m)
	}
}

func TestGetForecastSummary_IncrementFailureStillServesHit(t *testing.T) {
	store := newFakeStore()
	entry := cachedSummary(t, 42)
	store.entries[string(cache.TableSummary)+":"+entry.Fingerprint] = entry
	store.incErr = errors.New("boom")
	svc := newService(store, &fakeSource{}, true)

	rows, err := svc.GetForecastSummary(context.Background(), "CA", "")
	if err != nil {
		t.Fatalf("best-effort increment must not fail the read: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestGetForecastSummary_StoreErrorDegradesToMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	src := &fakeSource{}
	svc := newService(store, src, true)

	rows, err := svc.GetForecastSummary(context.Background(), "CA", "")
	if err != nil {
		t.Fatalf("transient store failure must not surface: %v", err)
	}
	if len(rows) != 1 || src.summaryCalls != 1 {
		t.Fatalf("cold path must serve the query")
	}
}

func TestGetForecastSummary_CacheDisabledBypasses(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{}
	svc := newService(store, src, false)

	if _, err := svc.GetForecastSummary(context.Background(), "CA", ""); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(store.getCalls) != 0 || len(store.upserts) != 0 {
		t.Fatalf("disabled cache must be neither read nor written")
	}
	if len(store.metrics) != 1 || store.metrics[0].DataSource != cache.SourceDatabase {
		t.Fatalf("metric still records the database path: %+v", store.metrics)
	}
}

func TestGetForecastByDate_StaleRangeGoesCold(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{}
	svc := newService(store, src, true)

	old := time.Now().AddDate(0, 0, -60).Format("2006-01-02")
	if _, err := svc.GetForecastByDate(context.Background(), old, old, "WY", ""); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(store.getCalls) != 0 {
		t.Fatalf("cold-routed query must not probe the cache")
	}
	if len(store.upserts) != 0 {
		t.Fatalf("cold-routed query must not write the cache")
	}
	if src.byDateCalls != 1 {
		t.Fatalf("source calls = %d", src.byDateCalls)
	}
}

func TestGetForecastData_ProbesBothTables(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{}
	svc := newService(store, src, true)

	if _, err := svc.GetForecastData(context.Background(), forecast.QueryFilters{Limit: 10}, ""); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(store.getCalls) != 2 ||
		store.getCalls[0] != cache.TableSummary || store.getCalls[1] != cache.TableTimeseries {
		t.Fatalf("read probes = %v", store.getCalls)
	}
	if len(store.upserts) != 1 || store.upserts[0].table != cache.TableTimeseries {
		t.Fatalf("data writes land in the timeseries table, got %+v", store.upserts)
	}
}

func TestExecuteQuery_NeverTouchesCache(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{}
	svc := newService(store, src, true)

	for i := 0; i < 3; i++ {
		if _, err := svc.ExecuteQuery(context.Background(), "SELECT 1", ""); err != nil {
			t.Fatalf("unexpected: %v", err)
		}
	}
	if len(store.getCalls) != 0 || len(store.upserts) != 0 {
		t.Fatalf("execute_query must bypass the cache entirely")
	}
	if len(store.metrics) != 3 {
		t.Fatalf("each call still records one metric, got %d", len(store.metrics))
	}
	if store.metrics[0].Filters != nil {
		t.Fatalf("execute_query metrics must not attach filters")
	}
}

func TestRun_SourceErrorRecordsErrorMetric(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{err: errors.New("source down")}
	svc := newService(store, src, true)

	if _, err := svc.GetForecastSummary(context.Background(), "CA", ""); err == nil {
		t.Fatalf("source failure must propagate")
	}
	if len(store.upserts) != 0 {
		t.Fatalf("failed query must not be cached")
	}
	if len(store.metrics) != 1 {
		t.Fatalf("metrics = %d, want exactly 1", len(store.metrics))
	}
	m := store.metrics[0]
	if !m.ErrorOccurred || m.CacheHit {
		t.Fatalf("error metric = %+v", m)
	}
	if m.DataSource != cache.SourceCache {
		t.Fatalf("attempted source on cacheable error = %s, want %s", m.DataSource, cache.SourceCache)
	}
}

func TestRun_CanceledContextRecordsNoMetric(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{blockCtx: true}
	svc := newService(store, src, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.GetForecastSummary(ctx, "CA", ""); err == nil {
		t.Fatalf("canceled query must fail")
	}
	if len(store.metrics) != 0 {
		t.Fatalf("canceled attempt must not flush a metric, got %d", len(store.metrics))
	}
}

func TestRun_MetricWriteFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.metricErr = errors.New("metrics table gone")
	src := &fakeSource{}
	svc := newService(store, src, true)

	if _, err := svc.GetForecastSummary(context.Background(), "CA", ""); err != nil {
		t.Fatalf("metric failure must never surface: %v", err)
	}
}

func TestRun_CacheWriteFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	src := &fakeSource{}
	svc := newService(store, src, true)

	rows, err := svc.GetForecastSummary(context.Background(), "CA", "")
	if err != nil {
		t.Fatalf("cache write failure must never surface: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("caller still gets the fresh result")
	}
}
