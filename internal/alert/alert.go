// Package alert defines the alert-delivery contract the departure engine
// drives, plus an in-process dispatcher implementation. The scheduler layer
// depends only on the Scheduler interface, so tests (and future platform
// integrations such as a push gateway) can substitute their own delivery.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

// Kind identifies which alert in the cascade fired, so delivery can route it:
// a departure alert opens the status view, a nag opens the capture flow.
type Kind string

const (
	// KindReminder is the single "T minus ten minutes" heads-up.
	KindReminder Kind = "reminder"
	// KindDeparture is the single "time to leave now" alert.
	KindDeparture Kind = "departure"
	// KindNag is one entry of the repeating proof-of-departure nag series.
	KindNag Kind = "nag"
)

// Alert is the payload scheduled for future delivery.
type Alert struct {
	Kind          Kind
	AppointmentID uuid.UUID
	Title         string
	Body          string
}

// Fired is one delivered alert, handed to the delivery callback.
type Fired struct {
	Alert
	Handle domain.AlarmHandle
	At     time.Time // the instant the alert was scheduled for
}

// Scheduler is the alert-delivery capability consumed by the cascade
// scheduler: fire-at-absolute-instant semantics with handle-addressable
// cancellation. Repeating triggers are deliberately absent — the nag series
// is scheduled as discrete instants so each entry is individually cancelable.
type Scheduler interface {
	// ScheduleAt registers a single alert to fire at the given instant and
	// returns a handle usable to cancel it. Instants that are not in the
	// future are rejected with an error.
	ScheduleAt(ctx context.Context, at time.Time, a Alert) (domain.AlarmHandle, error)

	// Cancel revokes a previously scheduled alert. Cancelling a handle that
	// is unknown, already fired, or already cancelled is a no-op, never an
	// error — the alert is simply treated as already gone.
	Cancel(ctx context.Context, h domain.AlarmHandle) error
}
