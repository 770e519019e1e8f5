// Package invalidation consumes forecast refresh events and evicts
// affected cache rows ahead of their TTL.
package invalidation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	TypeForecastRefreshed = "forecast_refreshed"
	TypeCachePurge        = "cache_purge"
)

// Event announces that upstream forecast data changed. States lists the
// affected regions; an empty list with TypeCachePurge means everything.
type Event struct {
	Version uint64    `json:"version"`
	Type    string    `json:"type"`
	States  []string  `json:"states,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	switch e.Type {
	case TypeForecastRefreshed:
		if len(e.States) == 0 {
			return fmt.Errorf("%s requires at least one state", TypeForecastRefreshed)
		}
		for _, s := range e.States {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("empty state in event")
			}
		}
	case TypeCachePurge:
	default:
		return fmt.Errorf("type must be %s or %s", TypeForecastRefreshed, TypeCachePurge)
	}
	if e.Version == 0 {
		return fmt.Errorf("version is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DedupeKey groups events so stale versions for the same scope are
// dropped. States are normalized and sorted so ordering differences in
// the payload do not split the scope.
func (e Event) DedupeKey() string {
	if e.Type == TypeCachePurge {
		return TypeCachePurge
	}
	states := make([]string, len(e.States))
	for i, s := range e.States {
		states[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(states)
	return e.Type + ":" + strings.Join(states, ",")
}
