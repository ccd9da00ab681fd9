// Package policy holds the pure timing rules for the reservation lifecycle.
package policy

import (
	"time"

	"chargebook/backend/services/booking-gateway/internal/apperr"
)

// MinNotice is the minimum lead time before start for a modify or cancel.
const MinNotice = 12 * time.Hour

// Clock abstracts the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// CanModifyOrCancel reports whether start is at least MinNotice after now.
// A reservation that has started or elapsed is never eligible.
func CanModifyOrCancel(start, now time.Time) bool {
	return start.Sub(now) >= MinNotice
}

// RequireNotice returns InvalidTimeWindow when CanModifyOrCancel is false.
func RequireNotice(op string, start, now time.Time) error {
	if CanModifyOrCancel(start, now) {
		return nil
	}
	return apperr.New(apperr.InvalidTimeWindow, op, "changes are only allowed at least 12 hours before the reservation starts")
}

// ValidateFutureStart rejects a start that is not strictly after now.
func ValidateFutureStart(op string, start, now time.Time) error {
	if start.IsZero() {
		return apperr.New(apperr.InvalidTimeWindow, op, "start time is required")
	}
	if !start.After(now) {
		return apperr.New(apperr.InvalidTimeWindow, op, "start time must be in the future")
	}
	return nil
}

// ValidateDuration rejects non-positive booking lengths.
func ValidateDuration(op string, hours int) error {
	if hours <= 0 {
		return apperr.New(apperr.InvalidTimeWindow, op, "duration must be at least one hour")
	}
	return nil
}
