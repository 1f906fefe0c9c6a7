package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Event is the normalized ingress payload from the parking platform. One
// schema covers ANPR entry/exit, spot occupancy updates, externally sourced
// violations and the lpr-to-spot mapping events.
type Event struct {
	ParkingLotID   int64    `json:"parking_lot_id" binding:"required"`
	ParkingLotName string   `json:"parking_lot_name,omitempty"`
	EventKey       EventKey `json:"event_key" binding:"required"`

	LicensePlate string `json:"license_plate,omitempty"`
	LprRecordID  *int64 `json:"lpr_record_id,omitempty"`

	ParkingSpotID   *int64 `json:"parking_spot_id,omitempty"`
	ParkingSpotName string `json:"parking_spot_name,omitempty"`
	SpotStatus      string `json:"spot_status,omitempty"`

	Timestamp *time.Time `json:"timestamp,omitempty"`
	EntryTime *time.Time `json:"entry_time,omitempty"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`

	Make               string `json:"make,omitempty"`
	Model              string `json:"model,omitempty"`
	Color              string `json:"color,omitempty"`
	Region             string `json:"region,omitempty"`
	FrameImageURL      string `json:"frame_image_url,omitempty"`
	VehicleCropURL     string `json:"vehicle_crop_image_url,omitempty"`
	LprCropURL         string `json:"lpr_crop_image_url,omitempty"`
	VehicleOrientation string `json:"vehicle_orientation,omitempty"`

	// Violation events.
	AlertID      *int64   `json:"alert_id,omitempty"`
	AlertTitle   string   `json:"alert_title,omitempty"`
	AlertTypeID  *int64   `json:"alert_type_id,omitempty"`
	AnprRecordID *int64   `json:"anpr_record_id,omitempty"`
	Violation    string   `json:"violation,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`

	// Scheduling overrides.
	NextAtOverride         *time.Time `json:"next_at,omitempty"`
	SpotPaymentGracePeriod *int       `json:"spot_payment_grace_period,omitempty"`
	ZonePaymentGracePeriod *int       `json:"zone_payment_grace_period,omitempty"`
	MaxParkTimeSeconds     *int       `json:"max_park_time_seconds,omitempty"`
	DisableSpotPayment     bool       `json:"disable_spot_payment,omitempty"`

	IsUnknown         bool   `json:"is_unknown,omitempty"`
	UnknownReason     string `json:"unknown_reason,omitempty"`
	ManuallyTriggered bool   `json:"manually_triggered,omitempty"`

	VehicleMetadata datatypes.JSONMap `json:"vehicle_metadata,omitempty"`
}

// EventType maps the ingress key (plus spot status for occupancy updates) to
// the canonical event type stored on tasks and sessions.
func (e Event) EventType() EventType {
	switch e.EventKey {
	case EventKeyLprEntry:
		return EventCarEntry
	case EventKeyLprExit:
		return EventCarExit
	case EventKeySpotUpdates:
		if e.SpotStatus == "available" {
			return EventSpotFree
		}
		return EventSpotOccupied
	case EventKeyViolation:
		return EventParkingViolation
	case EventKeyInactivateTask:
		return EventViolationInactivate
	default:
		return EventType(e.EventKey)
	}
}

// OccurredAt picks the event's effective instant: the explicit timestamp if
// present, entry/exit times next, otherwise now.
func (e Event) OccurredAt(now time.Time) time.Time {
	if e.Timestamp != nil {
		return *e.Timestamp
	}
	if e.EntryTime != nil && e.EventKey == EventKeyLprEntry {
		return *e.EntryTime
	}
	if e.ExitTime != nil && e.EventKey == EventKeyLprExit {
		return *e.ExitTime
	}
	return now
}

// Identity returns the plate when present, else the spot name, for logging.
func (e Event) Identity() string {
	if e.LicensePlate != "" {
		return e.LicensePlate
	}
	return e.ParkingSpotName
}

// ToMap renders the event as the JSON map persisted on sessions and tasks.
func (e Event) ToMap() datatypes.JSONMap {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	var m datatypes.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// EventFromMap rebuilds an event from a persisted payload, used when a
// session's entry event gets replayed.
func EventFromMap(m datatypes.JSONMap) (Event, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Event{}, err
	}
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
