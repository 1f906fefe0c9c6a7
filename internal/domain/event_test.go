package domain

import (
	"testing"
	"time"
)

func TestEventTypeMapping(t *testing.T) {
	cases := []struct {
		event Event
		want  EventType
	}{
		{Event{EventKey: EventKeyLprEntry}, EventCarEntry},
		{Event{EventKey: EventKeyLprExit}, EventCarExit},
		{Event{EventKey: EventKeySpotUpdates, SpotStatus: "available"}, EventSpotFree},
		{Event{EventKey: EventKeySpotUpdates, SpotStatus: "occupied"}, EventSpotOccupied},
		{Event{EventKey: EventKeyViolation}, EventParkingViolation},
		{Event{EventKey: EventKeyInactivateTask}, EventViolationInactivate},
	}
	for _, tc := range cases {
		if got := tc.event.EventType(); got != tc.want {
			t.Fatalf("EventType(%s/%s) = %s, want %s",
				tc.event.EventKey, tc.event.SpotStatus, got, tc.want)
		}
	}
}

func TestOccurredAtPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	explicit := now.Add(-time.Hour)
	entry := now.Add(-2 * time.Hour)

	e := Event{EventKey: EventKeyLprEntry, Timestamp: &explicit, EntryTime: &entry}
	if got := e.OccurredAt(now); !got.Equal(explicit) {
		t.Fatalf("explicit timestamp should win, got %v", got)
	}

	e = Event{EventKey: EventKeyLprEntry, EntryTime: &entry}
	if got := e.OccurredAt(now); !got.Equal(entry) {
		t.Fatalf("entry time should be used for entries, got %v", got)
	}

	e = Event{EventKey: EventKeyLprExit, EntryTime: &entry}
	if got := e.OccurredAt(now); !got.Equal(now) {
		t.Fatalf("entry time must not apply to exits, got %v", got)
	}
}

func TestEventRoundTripThroughMap(t *testing.T) {
	spotID := int64(7)
	e := Event{
		ParkingLotID:  42,
		EventKey:      EventKeyLprEntry,
		LicensePlate:  "ABC123",
		ParkingSpotID: &spotID,
	}

	back, err := EventFromMap(e.ToMap())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.ParkingLotID != 42 || back.EventKey != EventKeyLprEntry {
		t.Fatalf("round trip = %+v", back)
	}
	if back.LicensePlate != "ABC123" {
		t.Fatalf("plate = %q", back.LicensePlate)
	}
	if back.ParkingSpotID == nil || *back.ParkingSpotID != 7 {
		t.Fatalf("spot id = %v", back.ParkingSpotID)
	}
}

func TestIdentityPrefersPlate(t *testing.T) {
	e := Event{LicensePlate: "ABC123", ParkingSpotName: "A-7"}
	if got := e.Identity(); got != "ABC123" {
		t.Fatalf("identity = %q", got)
	}
	e.LicensePlate = ""
	if got := e.Identity(); got != "A-7" {
		t.Fatalf("identity = %q", got)
	}
}
