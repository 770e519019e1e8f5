package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/demandplan/forecast-cache/internal/clientcache"
	"github.com/demandplan/forecast-cache/internal/forecast"
	"github.com/demandplan/forecast-cache/internal/hybrid"
	"github.com/demandplan/forecast-cache/internal/source/pgsource"
)

// QueryHandler serves forecast reads through the hybrid orchestrator.
// An optional in-process view cache short-circuits repeated summary and
// timeseries reads before they reach the orchestrator at all.
type QueryHandler struct {
	svc   *hybrid.Service
	views *clientcache.Cache
	log   *slog.Logger
}

func NewQueryHandler(svc *hybrid.Service, views *clientcache.Cache, log *slog.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, views: views, log: log}
}

// Get dispatches GET ?action=summary|timeseries|data|stats.
func (h *QueryHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := r.Header.Get("X-User-ID")

	switch q.Get("action") {
	case "summary":
		filters := stateFilters(q.Get("state"))
		if payload, ok := h.cachedView(forecast.QueryTypeSummary, filters); ok {
			writeJSON(w, http.StatusOK, map[string]any{"data": payload})
			return
		}
		rows, err := h.svc.GetForecastSummary(r.Context(), q.Get("state"), userID)
		if err != nil {
			h.queryError(w, r, "forecast summary", err)
			return
		}
		h.storeView(forecast.QueryTypeSummary, filters, rows)
		writeJSON(w, http.StatusOK, map[string]any{"data": rows})
	case "timeseries":
		filters := stateFilters(q.Get("state"))
		filters.StartDate = q.Get("start_date")
		filters.EndDate = q.Get("end_date")
		if payload, ok := h.cachedView(forecast.QueryTypeByDate, filters); ok {
			writeJSON(w, http.StatusOK, map[string]any{"data": payload})
			return
		}
		rows, err := h.svc.GetForecastByDate(r.Context(),
			q.Get("start_date"), q.Get("end_date"), q.Get("state"), userID)
		if err != nil {
			h.queryError(w, r, "forecast timeseries", err)
			return
		}
		h.storeView(forecast.QueryTypeByDate, filters, rows)
		writeJSON(w, http.StatusOK, map[string]any{"data": rows})
	case "data":
		filters, err := filtersFromQuery(q)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		res, err := h.svc.GetForecastData(r.Context(), filters, userID)
		if err != nil {
			h.queryError(w, r, "forecast data", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": res})
	case "stats":
		stats, err := h.svc.CacheStats(r.Context())
		if err != nil {
			h.queryError(w, r, "cache stats", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": stats})
	default:
		badRequest(w, "unknown action")
	}
}

type executeBody struct {
	Query string `json:"query"`
}

// Post runs a guarded free-form query, always on the cold path.
func (h *QueryHandler) Post(w http.ResponseWriter, r *http.Request) {
	var body executeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "malformed request body")
		return
	}
	if body.Query == "" {
		badRequest(w, "missing query")
		return
	}
	res, err := h.svc.ExecuteQuery(r.Context(), body.Query, r.Header.Get("X-User-ID"))
	if err != nil {
		if errors.Is(err, pgsource.ErrQueryNotAllowed) {
			badRequest(w, err.Error())
			return
		}
		h.queryError(w, r, "execute query", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *QueryHandler) queryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.ErrorContext(r.Context(), op+" failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
}

func stateFilters(state string) forecast.QueryFilters {
	f := forecast.QueryFilters{}
	if state != "" {
		f.State = []string{state}
	}
	return f
}

// cachedView consults the in-process view cache. The stored payload is
// already-encoded JSON, replayed verbatim inside the response envelope.
func (h *QueryHandler) cachedView(queryType string, filters forecast.QueryFilters) (json.RawMessage, bool) {
	if h.views == nil {
		return nil, false
	}
	payload, ok := h.views.Get(queryType, filters)
	if !ok {
		return nil, false
	}
	return json.RawMessage(payload), true
}

// storeView keeps a fresh result warm for subsequent reads of the same
// view. Best-effort; an unencodable result is simply not cached.
func (h *QueryHandler) storeView(queryType string, filters forecast.QueryFilters, rows any) {
	if h.views == nil {
		return
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return
	}
	h.views.Set(queryType, filters, payload)
}

func filtersFromQuery(q map[string][]string) (forecast.QueryFilters, error) {
	get := func(k string) string {
		if vs := q[k]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	f := forecast.QueryFilters{
		StartDate: get("start_date"),
		EndDate:   get("end_date"),
	}
	if states := q["state"]; len(states) > 0 {
		f.State = states
	}
	for _, p := range []struct {
		key  string
		dest *int64
	}{
		{"restaurant_id", &f.RestaurantID},
		{"inventory_item_id", &f.InventoryItemID},
	} {
		if v := get(p.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return forecast.QueryFilters{}, errors.New("invalid " + p.key)
			}
			*p.dest = n
		}
	}
	if v := get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return forecast.QueryFilters{}, errors.New("invalid limit")
		}
		f.Limit = n
	}
	return f.Normalize(), nil
}
