package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Query types routed through the hybrid orchestrator.
const (
	QueryTypeSummary = "get_forecast_summary"
	QueryTypeByDate  = "get_forecast_by_date"
	QueryTypeData    = "get_forecast_data"
	QueryTypeExecute = "execute_query"
)

// SummaryRow is one state's aggregate forecast statistics.
type SummaryRow struct {
	State       string  `json:"state"`
	RecordCount int64   `json:"recordCount"`
	AvgForecast float64 `json:"avgForecast"`
	MinForecast float64 `json:"minForecast"`
	MaxForecast float64 `json:"maxForecast"`
}

// TimeseriesRow is the average forecast for one business date.
type TimeseriesRow struct {
	BusinessDate string  `json:"businessDate"`
	AvgForecast  float64 `json:"avgForecast"`
}

// QueryResponse is a column/row shaped result for raw-filtered and
// free-form queries.
type QueryResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// PayloadKind tags a cached payload with the shape it serializes.
type PayloadKind string

const (
	PayloadSummary    PayloadKind = "summary"
	PayloadTimeseries PayloadKind = "timeseries"
	PayloadResult     PayloadKind = "result"
)

// ErrPayloadKind reports a cached payload whose tag does not match the
// shape the caller asked for.
var ErrPayloadKind = errors.New("cached payload kind mismatch")

// Payload is the tagged envelope stored opaquely in cache rows. The tag
// is validated before use on the way out.
type Payload struct {
	Kind       PayloadKind     `json:"kind"`
	Summary    []SummaryRow    `json:"summary,omitempty"`
	Timeseries []TimeseriesRow `json:"timeseries,omitempty"`
	Result     *QueryResponse  `json:"result,omitempty"`
}

func SummaryPayload(rows []SummaryRow) Payload {
	return Payload{Kind: PayloadSummary, Summary: rows}
}

func TimeseriesPayload(rows []TimeseriesRow) Payload {
	return Payload{Kind: PayloadTimeseries, Timeseries: rows}
}

func ResultPayload(res *QueryResponse) Payload {
	return Payload{Kind: PayloadResult, Result: res}
}

func (p Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind, err)
	}
	return b, nil
}

// DecodePayload unmarshals a cached envelope and checks its tag.
func DecodePayload(data []byte, want PayloadKind) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode cached payload: %w", err)
	}
	if p.Kind != want {
		return Payload{}, fmt.Errorf("%w: have %q, want %q", ErrPayloadKind, p.Kind, want)
	}
	return p, nil
}
