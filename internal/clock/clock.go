// Package clock abstracts time for window arithmetic and scheduling.
package clock

import "time"

// Clock returns the current instant. The rule engine and scheduler take a
// Clock so window boundaries are reproducible in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed struct {
	At time.Time
}

// Now returns the configured instant.
func (f Fixed) Now() time.Time { return f.At }
