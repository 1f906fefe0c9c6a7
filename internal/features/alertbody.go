package features

import (
	"fmt"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// alertBody assembles the platform alert payload for a violation task. The
// detail line depends on whether the session is plate- or spot-keyed and on
// the feature raising the alert.
func alertBody(session *sessiondomain.Session, task *taskdomain.Task) map[string]any {
	spotName, plate := "", ""
	if session != nil {
		spotName, plate = session.ParkingSpotName, session.LprNumber
	}

	kind := "Overstay"
	if task.EventType == domain.EventPaymentViolation {
		kind = "Payment"
	}
	description := ""
	switch {
	case task.ParkingSpotID != nil:
		description = fmt.Sprintf("%s violation has been detected for the vehicle", kind)
		if spotName != "" {
			description += fmt.Sprintf(" on spot %s.", spotName)
		} else {
			description += "."
		}
	case task.PlateNumber != "":
		description = fmt.Sprintf("%s violation has been detected for the vehicle with the plate number %s.", kind, plate)
	}

	details := ""
	switch task.FeatureTextKey {
	case domain.FeaturePaymentCheckLpr:
		details = fmt.Sprintf("Payment violation has been detected for the vehicle with the plate number %s", plate)
	case domain.FeaturePaymentCheckSpot:
		details = fmt.Sprintf("Payment violation has been detected for the vehicle on spot %s.", spotName)
	case domain.FeatureNotifySGAdmin:
		details = description
	}

	body := map[string]any{
		"title":                                "Parking Time Exceeded",
		"severity":                             "medium",
		"category":                             "violation",
		"subcategory":                          "Overstay",
		"alert_type":                           "info",
		"alert_type_id":                        int64(2),
		"parking_lot_id":                       task.ParkingLotID,
		"details":                              details,
		"license_plate_number":                 task.PlateNumber,
		"parking_spot_id":                      task.ParkingSpotID,
		"alert_state":                          "open",
		"alert_trigger_state":                  "active",
		"entity_name":                          "sgconnect",
		"include_image":                        task.ParkingSpotID != nil,
		"vehicle_parking_usage_anpr_record_id": task.EventPayload["vehicle_record_id"],
		"parking_history_id":                   task.EventPayload["history_id"],
	}
	if task.EventType == domain.EventPaymentViolation {
		body["title"] = "Payment Violation"
		body["severity"] = "high"
		body["subcategory"] = "Non Payment"
		body["alert_type_id"] = int64(39)
	}
	return body
}
