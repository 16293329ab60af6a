// Package departure implements the two pure pieces of the departure engine:
// the departure-time calculation and the proof-of-departure evaluation.
// Nothing in this package performs I/O or reads the wall clock — callers
// supply every instant — so the whole package is deterministic.
package departure

import (
	"time"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

// DefaultBufferMinutes is the safety margin subtracted in addition to the
// route's travel time when computing the departure instant.
const DefaultBufferMinutes = 10

// Compute maps a meeting's calendar-local date/time, the selected route, and
// a buffer into the instant the user should leave the origin.
//
// Returns false when the date, time, or route is missing or unparseable.
// This is not an error: it is the legitimate "not enough information yet"
// state of a half-filled appointment, and callers decide what to do with it.
//
// The result has seconds and sub-second components truncated to zero, so two
// computations from identical inputs always yield an identical scheduling key.
// A departure in the past is a valid return value; no clamping to "now" is
// applied here.
func Compute(meetingDate, meetingTime string, route *domain.RouteSummary, bufferMinutes int, loc *time.Location) (time.Time, bool) {
	if route == nil {
		return time.Time{}, false
	}

	meetingAt, ok := domain.ParseMeetingAt(meetingDate, meetingTime, loc)
	if !ok {
		return time.Time{}, false
	}

	travel := time.Duration(route.TotalTimeMinutes) * time.Minute
	buffer := time.Duration(bufferMinutes) * time.Minute

	departureAt := meetingAt.Add(-travel - buffer)

	// The meeting instant is built with zero seconds and whole minutes are
	// subtracted, but truncate anyway so the guarantee does not depend on
	// how the inputs were constructed.
	return departureAt.Truncate(time.Minute), true
}
