// Package fingerprint derives stable identity strings for forecast
// queries. A fingerprint is a hash over the query type and its
// normalized filter set; equal queries always hash identically.
//
// Two identifier spaces exist and are never interchangeable:
//
//   - Strong: SHA-256, used for every persisted cache key and metrics
//     join key.
//   - Weak: xxhash64, collision-tolerant, used only by the in-process
//     preload cache where nothing is persisted. A weak fingerprint must
//     never be compared against a stored cache key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/demandplan/forecast-cache/internal/forecast"
)

// hashInput is serialized with encoding/json: struct fields keep
// declaration order, map keys are sorted. That makes the serialization
// canonical for a given normalized filter set.
type hashInput struct {
	QueryType string         `json:"queryType"`
	Filters   map[string]any `json:"filters"`
}

// Strong returns the hex SHA-256 fingerprint for a query.
func Strong(queryType string, filters forecast.QueryFilters) string {
	sum := sha256.Sum256(canonical(queryType, filters))
	return hex.EncodeToString(sum[:])
}

// Weak returns the hex xxhash64 fingerprint for a query. Documented as
// the weaker, client-only identifier space.
func Weak(queryType string, filters forecast.QueryFilters) string {
	return strconv.FormatUint(xxhash.Sum64(canonical(queryType, filters)), 16)
}

func canonical(queryType string, filters forecast.QueryFilters) []byte {
	f := filters.Normalize()

	m := make(map[string]any, 6)
	switch len(f.State) {
	case 0:
	case 1:
		m["state"] = strings.ToLower(f.State[0])
	default:
		lower := make([]string, len(f.State))
		for i, s := range f.State {
			lower[i] = strings.ToLower(s)
		}
		m["state"] = lower
	}
	if f.StartDate != "" {
		m["startDate"] = f.StartDate
	}
	if f.EndDate != "" {
		m["endDate"] = f.EndDate
	}
	if f.RestaurantID != 0 {
		m["restaurantId"] = f.RestaurantID
	}
	if f.InventoryItemID != 0 {
		m["inventoryItemId"] = f.InventoryItemID
	}
	if f.Limit != 0 {
		m["limit"] = f.Limit
	}

	// marshal cannot fail for this shape
	b, _ := json.Marshal(hashInput{QueryType: queryType, Filters: m})
	return b
}
