package features

import (
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"", false},
		{float64(1), true},
		{float64(0), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := truthy(tc.in); got != tc.want {
			t.Fatalf("truthy(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestStringOf(t *testing.T) {
	if got := stringOf("plate"); got != "plate" {
		t.Fatalf("string passthrough = %q", got)
	}
	if got := stringOf(float64(42)); got != "42" {
		t.Fatalf("float rendering = %q", got)
	}
	if got := stringOf(nil); got != "" {
		t.Fatalf("nil rendering = %q", got)
	}
	if got := stringOf(map[string]any{"a": 1}); got != `{"a":1}` {
		t.Fatalf("map rendering = %q", got)
	}
}

func TestTimeOfAcceptsKnownLayouts(t *testing.T) {
	for _, raw := range []string{
		"2026-03-10T09:30:00",
		"2026-03-10T09:30:00Z",
		"2026-03-10 09:30:00",
		"2026-03-10",
	} {
		parsed := timeOf(raw)
		if parsed == nil {
			t.Fatalf("timeOf(%q) = nil", raw)
		}
		if parsed.Year() != 2026 || parsed.Month() != time.March {
			t.Fatalf("timeOf(%q) = %v", raw, parsed)
		}
	}
	if timeOf("not a time") != nil {
		t.Fatal("garbage input should not parse")
	}
	if timeOf(42) != nil {
		t.Fatal("non-string input should not parse")
	}
}

func TestPaymentResultPeerShape(t *testing.T) {
	record := map[string]any{
		"amount":          float64(12.5),
		"start_timestamp": "2026-03-10T09:00:00",
		"end_timestamp":   "2026-03-10T17:00:00",
	}
	res, paidDate := paymentResult(record, map[string]any{})

	if res.Action != domain.ActionPaid {
		t.Fatalf("default action = %s", res.Action)
	}
	if res.PricePaid == nil || *res.PricePaid != 12.5 {
		t.Fatalf("price paid = %v", res.PricePaid)
	}
	if paidDate == nil || paidDate.Hour() != 9 {
		t.Fatalf("paid date = %v", paidDate)
	}
	if res.ExpiryDate == nil || res.ExpiryDate.Hour() != 17 {
		t.Fatalf("expiry date = %v", res.ExpiryDate)
	}
}

func TestPaymentResultDirectShapeAndActionOverride(t *testing.T) {
	record := map[string]any{
		"price_paid":  "8.25",
		"paid_date":   "2026-03-10",
		"expiry_date": "2026-03-11",
	}
	res, paidDate := paymentResult(record, map[string]any{"action_type": "Monthly Pass"})

	if res.Action != domain.ActionMonthlyPass {
		t.Fatalf("action = %s", res.Action)
	}
	if res.PricePaid == nil || *res.PricePaid != 8.25 {
		t.Fatalf("price paid = %v", res.PricePaid)
	}
	if paidDate == nil || res.ExpiryDate == nil {
		t.Fatalf("dates = %v, %v", paidDate, res.ExpiryDate)
	}
}

func TestEntryAfter(t *testing.T) {
	paid := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	task := &taskdomain.Task{
		EventPayload: datatypes.JSONMap{"entry_time": "2026-03-10T10:00:00"},
	}
	if !entryAfter(task, &paid) {
		t.Fatal("entry after the payment start should be detected")
	}

	task.EventPayload["entry_time"] = "2026-03-10T08:00:00"
	if entryAfter(task, &paid) {
		t.Fatal("entry before the payment start should pass")
	}
	if entryAfter(task, nil) {
		t.Fatal("missing paid date should pass")
	}
}

func TestSchemaMap(t *testing.T) {
	mapping := schemaMap(datatypes.JSON(`{"paid": "is_paid"}`))
	if mapping["paid"] != "is_paid" {
		t.Fatalf("mapping = %v", mapping)
	}
	if got := schemaMap(nil); len(got) != 0 {
		t.Fatalf("empty schema = %v", got)
	}
	if got := schemaMap(datatypes.JSON(`not json`)); len(got) != 0 {
		t.Fatalf("broken schema = %v", got)
	}
}

func TestAlertBodyPaymentViolation(t *testing.T) {
	session := &sessiondomain.Session{LprNumber: "ABC123"}
	task := &taskdomain.Task{
		EventType:      domain.EventPaymentViolation,
		FeatureTextKey: domain.FeaturePaymentCheckLpr,
		ParkingLotID:   42,
		PlateNumber:    "ABC123",
	}

	body := alertBody(session, task)
	if body["title"] != "Payment Violation" {
		t.Fatalf("title = %v", body["title"])
	}
	if body["alert_type_id"] != int64(39) {
		t.Fatalf("alert type id = %v", body["alert_type_id"])
	}
	if body["severity"] != "high" {
		t.Fatalf("severity = %v", body["severity"])
	}
	details, _ := body["details"].(string)
	if !strings.Contains(details, "ABC123") {
		t.Fatalf("details = %q", details)
	}
}

func TestAlertBodyOverstayOnSpot(t *testing.T) {
	spotID := int64(7)
	session := &sessiondomain.Session{ParkingSpotName: "A-7"}
	task := &taskdomain.Task{
		EventType:       domain.EventOverstayViolation,
		FeatureTextKey:  domain.FeaturePaymentCheckSpot,
		ParkingLotID:    42,
		ParkingSpotID:   &spotID,
		ParkingSpotName: "A-7",
	}

	body := alertBody(session, task)
	if body["title"] != "Parking Time Exceeded" {
		t.Fatalf("title = %v", body["title"])
	}
	if body["alert_type_id"] != int64(2) {
		t.Fatalf("alert type id = %v", body["alert_type_id"])
	}
	if body["include_image"] != true {
		t.Fatalf("include_image = %v", body["include_image"])
	}
	details, _ := body["details"].(string)
	if !strings.Contains(details, "A-7") {
		t.Fatalf("details = %q", details)
	}
}
