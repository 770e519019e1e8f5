// Package hybrid composes fingerprinting, hot/cold routing, the TTL
// policy and the cache store adapter into the public forecast query
// API. Every operation follows one sequence: fingerprint and route,
// try the cache on the hot path, fall through to the underlying source,
// write back, record exactly one metric.
package hybrid

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/cache/fingerprint"
	"github.com/demandplan/forecast-cache/internal/cache/hotcold"
	"github.com/demandplan/forecast-cache/internal/cache/keys"
	"github.com/demandplan/forecast-cache/internal/cache/ttl"
	"github.com/demandplan/forecast-cache/internal/core/observability"
	"github.com/demandplan/forecast-cache/internal/forecast"
	"github.com/demandplan/forecast-cache/internal/source"
)

// Config carries construction-time switches. CacheEnabled is fixed at
// construction; there is no process-wide toggle.
type Config struct {
	CacheEnabled bool
	// StatsWindow bounds the trailing window for CacheStats.
	StatsWindow time.Duration
}

type Service struct {
	cfg    Config
	store  cache.Store
	src    source.Interface
	router hotcold.Router
	now    func() time.Time
	log    *slog.Logger
}

func New(cfg Config, store cache.Store, src source.Interface, log *slog.Logger) *Service {
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 24 * time.Hour
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		src:    src,
		router: hotcold.Router{},
		now:    time.Now,
		log:    log,
	}
}

// plan fixes everything the shared template needs for one call.
type plan struct {
	queryType string
	filters   forecast.QueryFilters
	userID    string
	// readTables are probed in order on the hot path. Writes are routed
	// by query type, see keys.TableFor.
	readTables []cache.Table
	kind       forecast.PayloadKind
}

// GetForecastSummary serves per-state aggregates through the cache.
func (s *Service) GetForecastSummary(ctx context.Context, state, userID string) ([]forecast.SummaryRow, error) {
	filters := forecast.QueryFilters{}
	if state != "" {
		filters.State = []string{state}
	}
	p := plan{
		queryType:  forecast.QueryTypeSummary,
		filters:    filters.Normalize(),
		userID:     userID,
		readTables: []cache.Table{cache.TableSummary},
		kind:       forecast.PayloadSummary,
	}
	out, err := s.run(ctx, p, func(ctx context.Context) (forecast.Payload, error) {
		rows, err := s.src.ForecastSummary(ctx, state)
		if err != nil {
			return forecast.Payload{}, err
		}
		return forecast.SummaryPayload(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return out.Summary, nil
}

// GetForecastByDate serves date-ordered averages through the cache.
func (s *Service) GetForecastByDate(ctx context.Context, startDate, endDate, state, userID string) ([]forecast.TimeseriesRow, error) {
	filters := forecast.QueryFilters{StartDate: startDate, EndDate: endDate}
	if state != "" {
		filters.State = []string{state}
	}
	p := plan{
		queryType:  forecast.QueryTypeByDate,
		filters:    filters.Normalize(),
		userID:     userID,
		readTables: []cache.Table{cache.TableTimeseries},
		kind:       forecast.PayloadTimeseries,
	}
	out, err := s.run(ctx, p, func(ctx context.Context) (forecast.Payload, error) {
		rows, err := s.src.ForecastByDate(ctx, startDate, endDate, state)
		if err != nil {
			return forecast.Payload{}, err
		}
		return forecast.TimeseriesPayload(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return out.Timeseries, nil
}

// GetForecastData serves raw filtered rows. Reads probe the summary
// table first, then the timeseries table; writes land in the
// timeseries table.
func (s *Service) GetForecastData(ctx context.Context, filters forecast.QueryFilters, userID string) (*forecast.QueryResponse, error) {
	p := plan{
		queryType:  forecast.QueryTypeData,
		filters:    filters.Normalize(),
		userID:     userID,
		readTables: []cache.Table{cache.TableSummary, cache.TableTimeseries},
		kind:       forecast.PayloadResult,
	}
	out, err := s.run(ctx, p, func(ctx context.Context) (forecast.Payload, error) {
		res, err := s.src.ForecastData(ctx, p.filters)
		if err != nil {
			return forecast.Payload{}, err
		}
		return forecast.ResultPayload(res), nil
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// ExecuteQuery runs a free-form query. Always cold: never cached, but
// still metered.
func (s *Service) ExecuteQuery(ctx context.Context, query, userID string) (*forecast.QueryResponse, error) {
	p := plan{
		queryType: forecast.QueryTypeExecute,
		userID:    userID,
		kind:      forecast.PayloadResult,
	}
	out, err := s.run(ctx, p, func(ctx context.Context) (forecast.Payload, error) {
		res, err := s.src.ExecuteQuery(ctx, query)
		if err != nil {
			return forecast.Payload{}, err
		}
		return forecast.ResultPayload(res), nil
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// CacheStats aggregates the metrics table over the configured window.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.store.Stats(ctx, s.cfg.StatsWindow)
}

// ClearExpired runs the expiry sweep on demand.
func (s *Service) ClearExpired(ctx context.Context) (int64, error) {
	return s.store.ClearExpired(ctx)
}

// run is the single read/compute/cache/record sequence shared by every
// operation. It records exactly one metric per call, except when the
// caller's context is canceled, in which case the attempt is abandoned
// cleanly with no metric.
func (s *Service) run(ctx context.Context, p plan, query func(context.Context) (forecast.Payload, error)) (forecast.Payload, error) {
	start := s.now()
	fp := fingerprint.Strong(p.queryType, p.filters)
	hot := s.router.UseHotPath(p.queryType, p.filters)
	cacheable := s.cfg.CacheEnabled && hot && len(p.readTables) > 0

	if cacheable {
		if payload, ok := s.tryCache(ctx, p, fp); ok {
			observability.IncCacheHit()
			s.recordMetric(ctx, p, fp, start, cache.SourceCache, true, false)
			return payload, nil
		}
		observability.IncCacheMiss()
	}

	payload, err := query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// canceled attempt: no metric is flushed
			return forecast.Payload{}, err
		}
		attempted := cache.SourceDatabase
		if cacheable {
			attempted = cache.SourceCache
		}
		s.recordMetric(ctx, p, fp, start, attempted, false, true)
		return forecast.Payload{}, err
	}

	if cacheable {
		s.writeBack(ctx, p, fp, payload)
	}
	s.recordMetric(ctx, p, fp, start, cache.SourceDatabase, false, false)
	return payload, nil
}

// tryCache probes the plan's tables in order. Transient store failures
// and undecodable payloads degrade to a miss; they never surface.
func (s *Service) tryCache(ctx context.Context, p plan, fp string) (forecast.Payload, bool) {
	for _, table := range p.readTables {
		entry, err := s.store.GetCached(ctx, table, fp)
		if err != nil {
			if !errors.Is(err, cache.ErrNotFound) {
				s.log.Warn("cache read failed, continuing on cold path",
					"table", string(table), "fingerprint", fp, "err", err)
			}
			continue
		}
		payload, err := forecast.DecodePayload(entry.Data, p.kind)
		if err != nil {
			s.log.Warn("cached payload rejected", "table", string(table), "err", err)
			continue
		}
		// best-effort: a failed increment never fails the read
		if err := s.store.IncrementHit(ctx, table, entry.ID); err != nil {
			s.log.Warn("hit increment failed", "table", string(table), "id", entry.ID, "err", err)
		}
		return payload, true
	}
	return forecast.Payload{}, false
}

// writeBack caches a fresh result with a newly computed expiry.
// Best-effort: a missed write only degrades future performance.
func (s *Service) writeBack(ctx context.Context, p plan, fp string, payload forecast.Payload) {
	data, err := payload.Marshal()
	if err != nil {
		s.log.Warn("cache write skipped", "query_type", p.queryType, "err", err)
		return
	}
	lifetime := ttl.Determine(p.queryType, p.filters)
	row := cache.Upsert{
		CacheKey:    keys.Key(p.queryType, p.filters),
		Fingerprint: fp,
		State:       p.filters.FirstState(),
		StartDate:   p.filters.StartDate,
		EndDate:     p.filters.EndDate,
		Data:        data,
		ExpiresAt:   ttl.ExpiresAt(s.now(), lifetime),
	}
	if err := s.store.Upsert(ctx, keys.TableFor(p.queryType), row); err != nil {
		s.log.Warn("cache write failed", "query_type", p.queryType, "key", row.CacheKey, "err", err)
	}
}

// recordMetric appends the call's single metrics row. Best-effort and
// skipped entirely when the context is already canceled.
func (s *Service) recordMetric(ctx context.Context, p plan, fp string, start time.Time, dataSource string, hit, errored bool) {
	if ctx.Err() != nil {
		return
	}
	elapsed := s.now().Sub(start)
	observability.ObserveQuery(p.queryType, dataSource, hit, elapsed.Seconds())

	m := cache.Metric{
		Fingerprint:     fp,
		QueryType:       p.queryType,
		ExecutionTimeMS: elapsed.Milliseconds(),
		DataSource:      dataSource,
		CacheHit:        hit,
		ErrorOccurred:   errored,
		UserID:          p.userID,
	}
	if p.queryType != forecast.QueryTypeExecute {
		f := p.filters
		m.Filters = &f
	}
	if err := s.store.RecordMetric(ctx, m); err != nil {
		s.log.Warn("metric write failed", "query_type", p.queryType, "err", err)
	}
}
