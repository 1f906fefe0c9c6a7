// Package domain holds the vocabulary shared by every orchestration
// component: event kinds, feature keys, task statuses, alert reasons and the
// session-log action table.
package domain

// TaskStatus is the lifecycle state of a Task or SubTask.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusClosed     TaskStatus = "CLOSED"
	TaskStatusDeleted    TaskStatus = "DELETED"
)

// AuthType selects the authentication strategy for a provider credential.
type AuthType string

const (
	AuthBasic       AuthType = "basic"
	AuthOAuth       AuthType = "oauth"
	AuthJCookie     AuthType = "jcookie"
	AuthLogin       AuthType = "Login"
	AuthBasicBase64 AuthType = "basicbase64"
	AuthToken       AuthType = "Token"
)

// EventType is the canonical event vocabulary stored on tasks.
type EventType string

const (
	EventSpotOccupied        EventType = "spot.occupied"
	EventSpotFree            EventType = "spot.free"
	EventCarExit             EventType = "car.exit"
	EventCarEntry            EventType = "car.entry"
	EventPaymentViolation    EventType = "payment.violation"
	EventOverstayViolation   EventType = "overstay.violation"
	EventParkingViolation    EventType = "parking.violation"
	EventViolationInactivate EventType = "violation.inactivation"
)

// EventKey identifies an ingress event kind before normalization.
type EventKey string

const (
	EventKeyLprEntry       EventKey = "lpr_entry"
	EventKeyLprExit        EventKey = "lpr_exit"
	EventKeySpotUpdates    EventKey = "parking_spot_updates"
	EventKeyViolation      EventKey = "parking.violation"
	EventKeyLprToSpot      EventKey = "lpr.spot"
	EventKeyLprToSpotFree  EventKey = "lpr.spot.free"
	EventKeyInactivateTask EventKey = "violation.inactivation"
)

// exitEventTypes is the closed set of terminal event kinds. Dispatch uses it
// to decide the unavailable-provider path; the scheduler uses it to fan out
// task closing on session end.
var exitEventTypes = map[EventType]struct{}{
	EventSpotFree: {},
	EventCarExit:  {},
}

// IsExitEvent reports whether the event type denotes the end of an occupancy.
func IsExitEvent(t EventType) bool {
	_, ok := exitEventTypes[t]
	return ok
}

// entryEventTypes mirrors exitEventTypes for the opening side.
var entryEventTypes = map[EventType]struct{}{
	EventSpotOccupied: {},
	EventCarEntry:     {},
}

// IsEntryEvent reports whether the event type opens an occupancy.
func IsEntryEvent(t EventType) bool {
	_, ok := entryEventTypes[t]
	return ok
}

// WaitingForPayment returns the is_waiting_for_payment value an event type
// implies, and whether it implies one at all.
func WaitingForPayment(t EventType) (bool, bool) {
	if IsEntryEvent(t) {
		return true, true
	}
	if IsExitEvent(t) {
		return false, true
	}
	return false, false
}

// FeatureKey identifies a verification feature kind.
type FeatureKey string

const (
	FeaturePaymentCheckLpr     FeatureKey = "payment.check.lpr"
	FeaturePaymentCheckSpot    FeatureKey = "payment.check.spot"
	FeatureReservationCheckLpr FeatureKey = "reservation.check.lpr"
	FeatureEnforcementCitation FeatureKey = "enforcement.citation"
	FeatureNotifySGAdmin       FeatureKey = "notify.sg.admin"
	FeatureInactivation        FeatureKey = "enforcement.inactivate"

	// FeatureNone marks tasks created on the unavailable-provider exit path.
	FeatureNone FeatureKey = "NA"
)

// ProviderType categorizes a provider integration.
type ProviderType string

const (
	ProviderTypePayment     ProviderType = "provider.payment"
	ProviderTypeReservation ProviderType = "provider.reservation"
	ProviderTypeEnforcement ProviderType = "provider.enforcement"
	ProviderTypeViolation   ProviderType = "provider.violation"
)

// APIType selects the provider transport.
type APIType string

const (
	APITypeREST APIType = "REST"
	APITypeSOAP APIType = "SOAP"
)

// RequestKind distinguishes self-hosted provider calls from ones routed
// through peer microservices.
type RequestKind string

const (
	RequestKindConnect   RequestKind = "sgconnect"
	RequestKindNorthstar RequestKind = "northstar"
)

// PricingType controls how a violation's amount accrues.
type PricingType string

const (
	PricingFixed    PricingType = "FIXED"
	PricingVariable PricingType = "VARIABLE"
)

// ViolationStatus is the lifecycle state of a Violation record.
type ViolationStatus string

const (
	ViolationOpen   ViolationStatus = "OPEN"
	ViolationClosed ViolationStatus = "CLOSED"
)

// ParkingOperation is a lot's payment mode.
type ParkingOperation string

const (
	OperationPaid24Hours      ParkingOperation = "paid_24_hours"
	OperationSpotBasedFree24  ParkingOperation = "spot_based_24_hours_free_parking"
	OperationLprBasedFree24   ParkingOperation = "lpr_based_24_hours_free_parking"
	OperationScheduledLprPaid ParkingOperation = "specify_lpr_based_paid_parking_time"
)

// AlertReason is the free-text reason attached to an alert when the system
// marks it inactive.
type AlertReason string

const (
	ReasonPaymentWindowToFree AlertReason = "System marked as inactive as window is switching from payment to non-payment."
	ReasonFreeToPaymentWindow AlertReason = "System marked as inactive as window is switching from non-payment to payment."
	ReasonPaymentFound        AlertReason = "System marked as inactive as Payment was made."
	ReasonExitDetect          AlertReason = "System marked as inactive as Vehicle has exited the parking lot."
	ReasonLprToSpotFree       AlertReason = "System marked as inactive as Vehicle has exited from the spot."
	ReasonLprSpotDetected     AlertReason = "System marked as inactive as the vehicle occupied a different spot"
	ReasonForcedExit          AlertReason = "System marked as inactive as this session was automatically closed for exceeding the maximum session duration configured for this parking lot."
	ReasonSameLprEntry        AlertReason = "System marked as inactive as this session was automatically closed after another session was detected for the same vehicle."
	ReasonSameOccupiedEvent   AlertReason = "System marked as inactive as this session was automatically closed after a new vehicle session was detected for the same spot."
	ReasonUnknownEvent        AlertReason = "System marked as inactive as this session was automatically closed due to an unexpected system event, such as a camera restart."
)

// AuthErrorMessages are provider response strings that signal an expired or
// invalid token and should trigger re-authentication.
var AuthErrorMessages = []string{"Expired Token", "Invalid Token"}
