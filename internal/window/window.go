// Package window computes whether "now" falls inside a lot's payment-required
// window and when the next verification should wake up.
package window

import (
	"fmt"
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
)

// Result is the outcome of a payment window check. Status reports whether
// payment is required right now; NextAt is the next wake-up; EndTime is when
// the current phase flips.
type Result struct {
	Status              bool
	NextAt              time.Time
	EndTime             time.Time
	NextFreeWindowStart *time.Time
}

// Calculator evaluates payment windows against a clock.
type Calculator struct {
	clock       clock.Clock
	gracePeriod time.Duration
}

// NewCalculator builds a Calculator. gracePeriod is the delay before the
// first payment re-check inside a paid window.
func NewCalculator(clk clock.Clock, gracePeriod time.Duration) *Calculator {
	return &Calculator{clock: clk, gracePeriod: gracePeriod}
}

// OverstayLimit returns the lot's free-parking cap, when one applies. Lots on
// always-paid or spot-based free modes have none.
func OverstayLimit(lot *providerdomain.ConnectParkinglot) *time.Duration {
	if lot.ParkingOperations == domain.OperationPaid24Hours ||
		lot.ParkingOperations == domain.OperationSpotBasedFree24 {
		return nil
	}
	if lot.MaximumParkTimeInMins == nil || *lot.MaximumParkTimeInMins < 0 {
		return nil
	}
	limit := time.Duration(*lot.MaximumParkTimeInMins) * time.Minute
	return &limit
}

// Check evaluates the lot's payment window for the current instant.
func (c *Calculator) Check(lot *providerdomain.ConnectParkinglot, slots []providerdomain.ParkingTime) (Result, error) {
	now := c.clock.Now()
	overstay := OverstayLimit(lot)

	switch lot.ParkingOperations {
	case domain.OperationPaid24Hours, domain.OperationSpotBasedFree24:
		nextAt := now.Add(c.gracePeriod)
		return Result{Status: true, NextAt: nextAt, EndTime: nextAt.Add(24 * time.Hour)}, nil

	case domain.OperationLprBasedFree24:
		limit := c.gracePeriod
		if overstay != nil {
			limit = *overstay
		}
		nextAt := now.Add(limit)
		return Result{Status: false, NextAt: nextAt, EndTime: nextAt.Add(24 * time.Hour)}, nil

	case domain.OperationScheduledLprPaid:
		return c.checkScheduled(now, slots, overstay)

	default:
		return Result{}, fmt.Errorf("payment window operation type not matched: %q", lot.ParkingOperations)
	}
}

func (c *Calculator) checkScheduled(now time.Time, slots []providerdomain.ParkingTime, overstay *time.Duration) (Result, error) {
	windows, err := parseSlots(now, slots)
	if err != nil {
		return Result{}, err
	}
	if len(windows) == 0 {
		return Result{}, fmt.Errorf("no parking time slots configured")
	}

	inside, nextStart, currentEnd := locate(now, windows)
	if !inside {
		// Free phase: wake at the overstay limit or the next paid window,
		// whichever comes first.
		nextAt := nextStart
		if overstay != nil && now.Add(*overstay).Before(nextStart) {
			nextAt = now.Add(*overstay)
		}
		return Result{Status: false, NextAt: nextAt, EndTime: nextStart}, nil
	}

	// Paid phase: wake at the grace period or the next free window start,
	// whichever comes first.
	nextFree := nextFreeStart(now, windows)
	nextAt := now.Add(c.gracePeriod)
	if nextFree.Before(nextAt) {
		nextAt = nextFree
	}
	return Result{Status: true, NextAt: nextAt, EndTime: currentEnd, NextFreeWindowStart: &nextFree}, nil
}

type slotTimes struct {
	start time.Time
	end   time.Time
}

// parseSlots anchors the time-of-day slots to today's date.
func parseSlots(now time.Time, slots []providerdomain.ParkingTime) ([]slotTimes, error) {
	parsed := make([]slotTimes, 0, len(slots))
	for _, slot := range slots {
		start, err := combine(now, slot.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse slot start %q: %w", slot.StartTime, err)
		}
		end, err := combine(now, slot.EndTime)
		if err != nil {
			return nil, fmt.Errorf("parse slot end %q: %w", slot.EndTime, err)
		}
		parsed = append(parsed, slotTimes{start: start, end: end})
	}
	return parsed, nil
}

func combine(day time.Time, hhmm string) (time.Time, error) {
	var parsed time.Time
	var err error
	for _, layout := range []string{"15:04:05", "15:04"} {
		parsed, err = time.Parse(layout, hhmm)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, day.Location()), nil
}

// locate reports whether now is inside any window. When outside, it returns
// the soonest future window start, wrapping to tomorrow's first window.
func locate(now time.Time, windows []slotTimes) (bool, time.Time, time.Time) {
	for _, w := range windows {
		if !now.Before(w.start) && !now.After(w.end) {
			return true, time.Time{}, w.end
		}
	}
	next := slotTimes{
		start: windows[0].start.AddDate(0, 0, 1),
		end:   windows[0].end.AddDate(0, 0, 1),
	}
	found := false
	for _, w := range windows {
		if w.start.After(now) && (!found || w.start.Before(next.start)) {
			next = w
			found = true
		}
	}
	return false, next.start, next.end
}

// nextFreeStart is the soonest window end after now, wrapping to tomorrow's
// first window end when today is exhausted.
func nextFreeStart(now time.Time, windows []slotTimes) time.Time {
	next := windows[0].end.AddDate(0, 0, 1)
	found := false
	for _, w := range windows {
		if w.end.After(now) && (!found || w.end.Before(next)) {
			next = w.end
			found = true
		}
	}
	return next
}

// RemainingLabel renders the time left until end as the UI-facing string used
// in non-billable session log entries.
func RemainingLabel(from, end time.Time) string {
	minutes := end.Sub(from).Minutes()
	if minutes > 60 {
		return fmt.Sprintf("%.2f Hr", minutes/60)
	}
	if minutes < 0 {
		minutes = -minutes
	}
	return fmt.Sprintf("%.0f Min", minutes)
}
