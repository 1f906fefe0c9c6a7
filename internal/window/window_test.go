package window

import (
	"testing"
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
)

func fixedClock(hour, minute int) clock.Clock {
	return clock.Fixed{At: time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)}
}

func intPtr(v int) *int { return &v }

func TestCheckPaid24HoursAlwaysRequiresPayment(t *testing.T) {
	calc := NewCalculator(fixedClock(9, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationPaid24Hours}

	res, err := calc.Check(lot, nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Status {
		t.Fatalf("expected payment required on a paid_24_hours lot")
	}
	wantNext := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected next check at %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckLprBasedFree24UsesOverstayLimit(t *testing.T) {
	calc := NewCalculator(fixedClock(9, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{
		ParkingOperations:     domain.OperationLprBasedFree24,
		MaximumParkTimeInMins: intPtr(120),
	}

	res, err := calc.Check(lot, nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Status {
		t.Fatalf("expected free window on an lpr_based_free_24_hours lot")
	}
	wantNext := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected wake-up at the overstay limit %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckScheduledInsidePaidWindow(t *testing.T) {
	calc := NewCalculator(fixedClock(10, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationScheduledLprPaid}
	slots := []providerdomain.ParkingTime{
		{StartTime: "08:00:00", EndTime: "18:00:00"},
	}

	res, err := calc.Check(lot, slots)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Status {
		t.Fatalf("expected payment required at 10:00 inside an 08:00-18:00 window")
	}
	wantNext := time.Date(2026, 3, 10, 10, 20, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected grace-period wake-up %v, got %v", wantNext, res.NextAt)
	}
	wantFree := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	if res.NextFreeWindowStart == nil || !res.NextFreeWindowStart.Equal(wantFree) {
		t.Fatalf("expected next free window at %v, got %v", wantFree, res.NextFreeWindowStart)
	}
}

func TestCheckScheduledNearWindowEndWakesAtFreeStart(t *testing.T) {
	calc := NewCalculator(fixedClock(17, 50), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationScheduledLprPaid}
	slots := []providerdomain.ParkingTime{
		{StartTime: "08:00:00", EndTime: "18:00:00"},
	}

	res, err := calc.Check(lot, slots)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Status {
		t.Fatalf("expected payment required at 17:50")
	}
	wantNext := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected wake-up clipped to the window end %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckScheduledOutsideWindowWakesAtNextStart(t *testing.T) {
	calc := NewCalculator(fixedClock(6, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationScheduledLprPaid}
	slots := []providerdomain.ParkingTime{
		{StartTime: "08:00:00", EndTime: "18:00:00"},
	}

	res, err := calc.Check(lot, slots)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Status {
		t.Fatalf("expected free phase at 06:00")
	}
	wantNext := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected wake-up at window start %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckScheduledOutsideWindowOverstayWinsWhenSooner(t *testing.T) {
	calc := NewCalculator(fixedClock(6, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{
		ParkingOperations:     domain.OperationScheduledLprPaid,
		MaximumParkTimeInMins: intPtr(60),
	}
	slots := []providerdomain.ParkingTime{
		{StartTime: "08:00:00", EndTime: "18:00:00"},
	}

	res, err := calc.Check(lot, slots)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	wantNext := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected overstay wake-up %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckScheduledAfterLastWindowWrapsToTomorrow(t *testing.T) {
	calc := NewCalculator(fixedClock(20, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationScheduledLprPaid}
	slots := []providerdomain.ParkingTime{
		{StartTime: "08:00:00", EndTime: "18:00:00"},
	}

	res, err := calc.Check(lot, slots)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Status {
		t.Fatalf("expected free phase at 20:00")
	}
	wantNext := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	if !res.NextAt.Equal(wantNext) {
		t.Fatalf("expected tomorrow's window start %v, got %v", wantNext, res.NextAt)
	}
}

func TestCheckScheduledNoSlotsFails(t *testing.T) {
	calc := NewCalculator(fixedClock(9, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationScheduledLprPaid}

	if _, err := calc.Check(lot, nil); err == nil {
		t.Fatalf("expected error for a scheduled lot without slots")
	}
}

func TestCheckUnknownOperationFails(t *testing.T) {
	calc := NewCalculator(fixedClock(9, 0), 20*time.Minute)
	lot := &providerdomain.ConnectParkinglot{ParkingOperations: "weekend_only"}

	if _, err := calc.Check(lot, nil); err == nil {
		t.Fatalf("expected error for an unknown parking operation")
	}
}

func TestOverstayLimit(t *testing.T) {
	paid := &providerdomain.ConnectParkinglot{
		ParkingOperations:     domain.OperationPaid24Hours,
		MaximumParkTimeInMins: intPtr(60),
	}
	if OverstayLimit(paid) != nil {
		t.Fatalf("paid lots have no overstay limit")
	}

	free := &providerdomain.ConnectParkinglot{
		ParkingOperations:     domain.OperationLprBasedFree24,
		MaximumParkTimeInMins: intPtr(90),
	}
	limit := OverstayLimit(free)
	if limit == nil || *limit != 90*time.Minute {
		t.Fatalf("expected 90m overstay limit, got %v", limit)
	}

	unlimited := &providerdomain.ConnectParkinglot{ParkingOperations: domain.OperationLprBasedFree24}
	if OverstayLimit(unlimited) != nil {
		t.Fatalf("expected no limit when maximum park time is unset")
	}
}

func TestRemainingLabel(t *testing.T) {
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if got := RemainingLabel(from, from.Add(30*time.Minute)); got != "30 Min" {
		t.Fatalf("expected 30 Min, got %q", got)
	}
	if got := RemainingLabel(from, from.Add(90*time.Minute)); got != "1.50 Hr" {
		t.Fatalf("expected 1.50 Hr, got %q", got)
	}
}
