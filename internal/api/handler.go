// Package api exposes the HTTP surface of the cache service: the
// action-based cache facade and the forecast query endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/demandplan/forecast-cache/internal/cache"
	"github.com/demandplan/forecast-cache/internal/cache/fingerprint"
	"github.com/demandplan/forecast-cache/internal/cache/keys"
	"github.com/demandplan/forecast-cache/internal/cache/ttl"
	"github.com/demandplan/forecast-cache/internal/forecast"
)

// CacheHandler serves the raw cache facade. It owns no routing or TTL
// decisions beyond computing keys and expiries for explicit writes;
// everything is persisted through the store adapter.
type CacheHandler struct {
	store       cache.Store
	log         *slog.Logger
	statsWindow time.Duration
	now         func() time.Time
}

func NewCacheHandler(store cache.Store, statsWindow time.Duration, log *slog.Logger) *CacheHandler {
	if statsWindow <= 0 {
		statsWindow = 24 * time.Hour
	}
	return &CacheHandler{store: store, log: log, statsWindow: statsWindow, now: time.Now}
}

// entryJSON is the wire shape of one cache row.
type entryJSON struct {
	ID          int64           `json:"id"`
	CacheKey    string          `json:"cacheKey"`
	Fingerprint string          `json:"queryFingerprint"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	HitCount    int64           `json:"hitCount"`
}

func toEntryJSON(e *cache.Entry) entryJSON {
	return entryJSON{
		ID:          e.ID,
		CacheKey:    e.CacheKey,
		Fingerprint: e.Fingerprint,
		Data:        json.RawMessage(e.Data),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		ExpiresAt:   e.ExpiresAt,
		HitCount:    e.HitCount,
	}
}

// Get dispatches GET ?action=get_summary|get_timeseries|get_stats.
func (h *CacheHandler) Get(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch action {
	case "get_summary":
		h.getEntry(w, r, cache.TableSummary)
	case "get_timeseries":
		h.getEntry(w, r, cache.TableTimeseries)
	case "get_stats":
		stats, err := h.store.Stats(r.Context(), h.statsWindow)
		if err != nil {
			h.internalError(w, r, "cache stats", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": stats})
	default:
		badRequest(w, "unknown action")
	}
}

func (h *CacheHandler) getEntry(w http.ResponseWriter, r *http.Request, table cache.Table) {
	fp := r.URL.Query().Get("fingerprint")
	if fp == "" {
		badRequest(w, "missing fingerprint")
		return
	}
	entry, err := h.store.GetCached(r.Context(), table, fp)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"data": nil})
			return
		}
		h.internalError(w, r, "cache get", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": toEntryJSON(entry)})
}

type postRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type cacheWriteBody struct {
	QueryType string                `json:"queryType"`
	Filters   forecast.QueryFilters `json:"filters"`
	Data      json.RawMessage       `json:"data"`
}

type metricBody struct {
	Fingerprint     string                 `json:"queryFingerprint"`
	QueryType       string                 `json:"queryType"`
	ExecutionTimeMS int64                  `json:"executionTimeMs"`
	DataSource      string                 `json:"dataSource"`
	CacheHit        bool                   `json:"cacheHit"`
	ErrorOccurred   bool                   `json:"errorOccurred"`
	UserID          string                 `json:"userId"`
	Filters         *forecast.QueryFilters `json:"filters"`
}

type incrementBody struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`
}

// Post dispatches the write actions.
func (h *CacheHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	switch req.Action {
	case "cache_summary":
		h.cacheWrite(w, r, req.Data, cache.TableSummary)
	case "cache_timeseries":
		h.cacheWrite(w, r, req.Data, cache.TableTimeseries)
	case "record_metrics":
		h.recordMetrics(w, r, req.Data)
	case "increment_hit":
		h.incrementHit(w, r, req.Data)
	case "clear_expired":
		removed, err := h.store.ClearExpired(r.Context())
		if err != nil {
			h.internalError(w, r, "clear expired", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "cleared": removed})
	default:
		badRequest(w, "unknown action")
	}
}

func (h *CacheHandler) cacheWrite(w http.ResponseWriter, r *http.Request, raw json.RawMessage, table cache.Table) {
	var body cacheWriteBody
	if err := json.Unmarshal(raw, &body); err != nil {
		badRequest(w, "malformed cache write body")
		return
	}
	if body.QueryType == "" || len(body.Data) == 0 {
		badRequest(w, "missing queryType or data")
		return
	}

	filters := body.Filters.Normalize()
	lifetime := ttl.Determine(body.QueryType, filters)
	row := cache.Upsert{
		CacheKey:    keys.Key(body.QueryType, filters),
		Fingerprint: fingerprint.Strong(body.QueryType, filters),
		State:       filters.FirstState(),
		StartDate:   filters.StartDate,
		EndDate:     filters.EndDate,
		Data:        body.Data,
		ExpiresAt:   ttl.ExpiresAt(h.now(), lifetime),
	}
	if err := h.store.Upsert(r.Context(), table, row); err != nil {
		h.internalError(w, r, "cache upsert", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *CacheHandler) recordMetrics(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var body metricBody
	if err := json.Unmarshal(raw, &body); err != nil {
		badRequest(w, "malformed metrics body")
		return
	}
	if body.Fingerprint == "" || body.QueryType == "" {
		badRequest(w, "missing fingerprint or queryType")
		return
	}
	m := cache.Metric{
		Fingerprint:     body.Fingerprint,
		QueryType:       body.QueryType,
		ExecutionTimeMS: body.ExecutionTimeMS,
		DataSource:      body.DataSource,
		CacheHit:        body.CacheHit,
		ErrorOccurred:   body.ErrorOccurred,
		UserID:          body.UserID,
		Filters:         body.Filters,
	}
	if err := h.store.RecordMetric(r.Context(), m); err != nil {
		h.internalError(w, r, "record metric", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *CacheHandler) incrementHit(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var body incrementBody
	if err := json.Unmarshal(raw, &body); err != nil {
		badRequest(w, "malformed increment body")
		return
	}
	var table cache.Table
	switch body.Table {
	case "summary":
		table = cache.TableSummary
	case "timeseries":
		table = cache.TableTimeseries
	default:
		badRequest(w, "unknown table")
		return
	}
	if body.ID <= 0 {
		badRequest(w, "missing id")
		return
	}
	if err := h.store.IncrementHit(r.Context(), table, body.ID); err != nil {
		h.internalError(w, r, "increment hit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *CacheHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.ErrorContext(r.Context(), op+" failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
