package mapper

import (
	"context"
	"testing"
	"time"
)

var matchNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func validRecord(plate any) map[string]any {
	return map[string]any{
		"plate_number": plate,
		"paid_date":    "2026-03-10T08:00:00",
		"expiry_date":  "2026-03-10T20:00:00",
	}
}

func TestFindClosestMatchExactWins(t *testing.T) {
	records := []map[string]any{
		validRecord("ABC124"),
		validRecord("ABC123"),
	}

	m := FindClosestMatch(records, "abc123", 2, matchNow)
	if m.Record == nil {
		t.Fatalf("expected a match")
	}
	if m.Plate != "abc123" {
		t.Fatalf("exact match keeps the target plate, got %q", m.Plate)
	}
	if m.Record["match_lpr"] != "ABC123" {
		t.Fatalf("expected match_lpr ABC123, got %v", m.Record["match_lpr"])
	}
}

func TestFindClosestMatchWithinDistance(t *testing.T) {
	records := []map[string]any{
		validRecord("XYZ999"),
		validRecord("ABC128"),
	}

	m := FindClosestMatch(records, "ABC123", 2, matchNow)
	if m.Record == nil {
		t.Fatalf("expected a fuzzy match")
	}
	if m.Plate != "ABC128" {
		t.Fatalf("fuzzy match carries the provider plate, got %q", m.Plate)
	}
}

func TestFindClosestMatchRespectsThreshold(t *testing.T) {
	records := []map[string]any{validRecord("ABCXYZ")}

	m := FindClosestMatch(records, "ABC123", 2, matchNow)
	if m.Record != nil {
		t.Fatalf("expected no match beyond the distance threshold")
	}
}

func TestFindClosestMatchSkipsExpiredRecords(t *testing.T) {
	expired := map[string]any{
		"plate_number": "ABC123",
		"paid_date":    "2026-03-09T08:00:00",
		"expiry_date":  "2026-03-09T20:00:00",
	}

	m := FindClosestMatch([]map[string]any{expired}, "ABC123", 2, matchNow)
	if m.Record != nil {
		t.Fatalf("expired records must not match")
	}
}

func TestFindClosestMatchUnboundedValidityNeverMatches(t *testing.T) {
	m := FindClosestMatch([]map[string]any{{"plate_number": "ABC123"}}, "ABC123", 2, matchNow)
	if m.Record != nil {
		t.Fatalf("records without validity bounds must not match")
	}
}

func TestFindClosestMatchPlateList(t *testing.T) {
	record := validRecord([]any{"DEF456", "ABC123"})

	m := FindClosestMatch([]map[string]any{record}, "ABC123", 2, matchNow)
	if m.Record == nil {
		t.Fatalf("expected a match from the plate list")
	}
	if m.Record["match_lpr"] != "ABC123" {
		t.Fatalf("expected match_lpr ABC123, got %v", m.Record["match_lpr"])
	}
}

func TestFilterTibaPassThroughForOtherProviders(t *testing.T) {
	record := validRecord("ABC123")
	m := Match{Record: record, Plate: "ABC123"}

	got, err := FilterTiba(context.Background(), "provider.payment.passport", m, 1, nil)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got == nil {
		t.Fatalf("non-TIBA providers pass through")
	}
}

func TestFilterTibaDropsWhenPeerCarPresent(t *testing.T) {
	record := validRecord("ABC123")
	record["filtered_lpr_keys"] = []any{"ABC123", "DEF456"}
	m := Match{Record: record, Plate: "ABC123"}

	check := func(ctx context.Context, lotID int64, plates []string) (bool, error) {
		if len(plates) != 1 || plates[0] != "DEF456" {
			t.Fatalf("expected secondary plate DEF456, got %v", plates)
		}
		return true, nil
	}

	got, err := FilterTiba(context.Background(), providerReservationTiba, m, 1, check)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got != nil {
		t.Fatalf("expected the reservation to be dropped for the peer car")
	}
}

func TestFilterTibaKeepsWhenNoPeerCar(t *testing.T) {
	record := validRecord("ABC123")
	record["filtered_lpr_keys"] = []any{"ABC123", "DEF456"}
	m := Match{Record: record, Plate: "ABC123"}

	check := func(ctx context.Context, lotID int64, plates []string) (bool, error) {
		return false, nil
	}

	got, err := FilterTiba(context.Background(), providerReservationTiba, m, 1, check)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the reservation to survive")
	}
	if got["plate_number"] != "ABC123" {
		t.Fatalf("surviving record carries the matched plate, got %v", got["plate_number"])
	}
}
