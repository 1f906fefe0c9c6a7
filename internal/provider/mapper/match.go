package mapper

import (
	"context"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// Provider text keys that need peer-car filtering on top of the plate
// match.
const providerReservationTiba = "provider.reservation.tiba"

const validityLayout = "2006-01-02T15:04:05"

// Match is the record selected for a plate, together with the exact
// provider-side plate text that matched.
type Match struct {
	Record map[string]any
	Plate  string
}

// SecondaryPlateChecker reports whether any of the given plates has an
// active presence in the lot. Used by the TIBA filter to detect a peer
// car already occupying the reservation.
type SecondaryPlateChecker func(ctx context.Context, parkingLotID int64, plates []string) (bool, error)

// FindClosestMatch selects the record whose plate is closest to target
// within maxDistance edits. Records outside their paid_date/expiry_date
// validity interval at now are skipped; a missing bound defaults to an
// interval in the past so unbounded records never match. An exact match
// wins immediately, otherwise the smallest edit distance encountered
// first wins. Returns a zero Match when nothing qualifies.
func FindClosestMatch(records []map[string]any, target string, maxDistance int, now time.Time) Match {
	best := Match{}
	minDistance := maxDistance + 1
	targetUpper := strings.ToUpper(target)

	for _, record := range records {
		if !validAt(record, now) {
			continue
		}
		for _, plate := range recordPlates(record) {
			d := levenshtein.ComputeDistance(strings.ToUpper(plate), targetUpper)
			if d == 0 {
				record["match_lpr"] = plate
				return Match{Record: record, Plate: target}
			}
			if d <= maxDistance && d < minDistance {
				record["match_lpr"] = plate
				best = Match{Record: record, Plate: plate}
				minDistance = d
			}
		}
	}
	return best
}

// FilterTiba drops a matched reservation when another plate on the same
// record is already present in the lot, which means a peer car holds
// the spot. For other providers the match passes through unchanged. The
// surviving record carries the matched plate under plate_number.
func FilterTiba(ctx context.Context, providerTextKey string, m Match, parkingLotID int64, check SecondaryPlateChecker) (map[string]any, error) {
	if m.Record == nil {
		return nil, nil
	}
	if providerTextKey != providerReservationTiba || check == nil {
		return m.Record, nil
	}
	var secondary []string
	if keys, ok := m.Record["filtered_lpr_keys"].([]any); ok {
		for _, k := range keys {
			if s, ok := k.(string); ok && s != m.Plate {
				secondary = append(secondary, s)
			}
		}
	}
	if len(secondary) > 0 {
		present, err := check(ctx, parkingLotID, secondary)
		if err != nil {
			return nil, err
		}
		if present {
			return nil, nil
		}
	}
	m.Record["plate_number"] = m.Plate
	return m.Record, nil
}

func validAt(record map[string]any, now time.Time) bool {
	start := parseValidity(record, "paid_date")
	end := parseValidity(record, "expiry_date")
	return !start.After(now) && !end.Before(now)
}

// parseValidity normalizes the bound to the shared layout, accepting
// RFC 3339 variants some providers send, and rewrites the record so
// downstream consumers see one format.
func parseValidity(record map[string]any, key string) time.Time {
	fallback := time.Date(1990, time.January, 1, 12, 0, 0, 0, time.UTC)
	raw, ok := record[key].(string)
	if !ok || raw == "" {
		return fallback
	}
	for _, layout := range []string{validityLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			record[key] = t.UTC().Format(validityLayout)
			return t.UTC()
		}
	}
	return fallback
}

func recordPlates(record map[string]any) []string {
	switch v := record["plate_number"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		plates := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok && s != "" {
				plates = append(plates, s)
			}
		}
		return plates
	case []string:
		return v
	}
	return nil
}
