// Package scheduler owns the cascade of time-based alerts armed for an
// appointment: a pre-departure reminder, a departure-time alert, and a
// bounded nag series prompting proof-of-departure capture. It is the only
// layer that talks to the alert-delivery subsystem.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seojinpark/ontime/backend/internal/alert"
	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
	"github.com/seojinpark/ontime/backend/internal/repo"
)

// Defaults for the cascade shape.
const (
	// DefaultReminderLead is how long before the departure instant the
	// heads-up reminder fires.
	DefaultReminderLead = 10 * time.Minute
	// DefaultNagCount is the number of discrete nag alerts scheduled.
	DefaultNagCount = 30
	// DefaultNagInterval is the spacing between consecutive nag alerts.
	DefaultNagInterval = time.Minute
	// nagCatchUpDelay is how far from "now" the nag series starts when the
	// departure instant has already passed at arm time.
	nagCatchUpDelay = time.Second
)

// Config shapes the cascade. Zero-valued fields fall back to package defaults.
type Config struct {
	BufferMinutes int
	ReminderLead  time.Duration
	NagCount      int
	NagInterval   time.Duration
	Location      *time.Location
}

func (c Config) withDefaults() Config {
	if c.BufferMinutes <= 0 {
		c.BufferMinutes = departure.DefaultBufferMinutes
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = DefaultReminderLead
	}
	if c.NagCount <= 0 {
		c.NagCount = DefaultNagCount
	}
	if c.NagInterval <= 0 {
		c.NagInterval = DefaultNagInterval
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Cascade arms and disarms the alert set for appointments. At most one
// operation runs per appointment at a time: Arm drops a concurrent call as a
// no-op, Disarm and CancelNags wait their turn. Handle lists on the record
// are always replaced wholesale under the lock, never merged, so no observable
// state ever holds both an old and a new handle set.
type Cascade struct {
	repo   repo.AppointmentRepo
	alerts alert.Scheduler
	cfg    Config

	// now is the clock; replaced in tests.
	now func() time.Time

	locks keyedLocks
}

// New constructs a Cascade over the given repository and alert delivery.
func New(r repo.AppointmentRepo, alerts alert.Scheduler, cfg Config) *Cascade {
	return &Cascade{
		repo:   r,
		alerts: alerts,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// Arm cancels whatever is currently scheduled for the appointment and arms a
// fresh cascade from its current fields. Calling it twice in sequence yields
// the same net alert set as calling it once.
//
// If another Arm or Disarm for the same appointment is already in flight the
// call returns immediately without touching anything — no queueing, no error.
//
// An incomplete appointment (no computable departure instant) disarms only.
// A departure instant already in the past produces no reminder and no
// departure alert, but the nag series still starts just after "now" so the
// user is prompted to capture proof (catch-up policy). A verified appointment
// gets no nag series at all — departure has already been proven.
//
// On alert-delivery failure the handles that were created successfully are
// still persisted, and the error is returned for the caller to surface.
func (c *Cascade) Arm(ctx context.Context, id uuid.UUID) error {
	lock := c.locks.get(id)
	if !lock.TryLock() {
		// A cascade operation for this appointment is already running.
		// Interleaving a second one would race cancel against create and
		// leak orphaned handles, so the late caller is dropped.
		slog.Debug("arm already in flight, dropping", "appointment_id", id)
		return nil
	}
	defer lock.Unlock()

	appt, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler.Cascade.Arm: %w", err)
	}

	// Stale handles first: the old cascade may describe a departure instant
	// that no longer matches the appointment's fields.
	c.cancelAll(ctx, appt.AlarmHandles)
	c.cancelAll(ctx, appt.NagHandles)
	appt.AlarmHandles = nil
	appt.NagHandles = nil

	if !appt.IsConfirmed {
		if err := c.repo.UpdateHandles(ctx, appt.ID, nil, nil); err != nil {
			return fmt.Errorf("scheduler.Cascade.Arm: %w", err)
		}
		return fmt.Errorf("scheduler.Cascade.Arm: %w: appointment is not confirmed", domain.ErrValidation)
	}

	departureAt, ok := departure.Compute(appt.MeetingDate, appt.MeetingTime, appt.Route, c.cfg.BufferMinutes, c.cfg.Location)
	if !ok {
		// Not enough information to schedule anything yet.
		if err := c.repo.UpdateHandles(ctx, appt.ID, nil, nil); err != nil {
			return fmt.Errorf("scheduler.Cascade.Arm: %w", err)
		}
		return nil
	}

	now := c.now()
	var firstErr error

	schedule := func(at time.Time, a alert.Alert) (domain.AlarmHandle, bool) {
		h, err := c.alerts.ScheduleAt(ctx, at, a)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return "", false
		}
		return h, true
	}

	if reminderAt := departureAt.Add(-c.cfg.ReminderLead); reminderAt.After(now) {
		if h, ok := schedule(reminderAt, alert.Alert{
			Kind:          alert.KindReminder,
			AppointmentID: appt.ID,
			Title:         "Get ready to leave",
			Body:          fmt.Sprintf("You leave in %d minutes.", int(c.cfg.ReminderLead.Minutes())),
		}); ok {
			appt.AlarmHandles = append(appt.AlarmHandles, h)
		}
	}

	if departureAt.After(now) {
		if h, ok := schedule(departureAt, alert.Alert{
			Kind:          alert.KindDeparture,
			AppointmentID: appt.ID,
			Title:         "Time to leave",
			Body:          "Leave now to make your appointment on time.",
		}); ok {
			appt.AlarmHandles = append(appt.AlarmHandles, h)
		}
	}

	// Departure already proven: nothing left to nag about. The reminder and
	// departure alerts above are informational and still fire.
	if !appt.IsVerified {
		nagStart := departureAt
		if !nagStart.After(now) {
			nagStart = now.Add(nagCatchUpDelay)
		}
		for i := 0; i < c.cfg.NagCount; i++ {
			h, ok := schedule(nagStart.Add(time.Duration(i)*c.cfg.NagInterval), alert.Alert{
				Kind:          alert.KindNag,
				AppointmentID: appt.ID,
				Title:         "Did you leave?",
				Body:          "Capture your departure proof to stop these reminders.",
			})
			if !ok {
				// Delivery is rejecting schedules; the rest of the series
				// would fail the same way.
				break
			}
			appt.NagHandles = append(appt.NagHandles, h)
		}
	}

	if err := c.repo.UpdateHandles(ctx, appt.ID, appt.AlarmHandles, appt.NagHandles); err != nil {
		return fmt.Errorf("scheduler.Cascade.Arm: persist handles: %w", err)
	}

	slog.Info("appointment armed",
		"appointment_id", appt.ID,
		"departure_at", departureAt,
		"alarms", len(appt.AlarmHandles),
		"nags", len(appt.NagHandles),
	)

	if firstErr != nil {
		return fmt.Errorf("scheduler.Cascade.Arm: schedule alert: %w", firstErr)
	}
	return nil
}

// Disarm cancels every handle on record for the appointment and clears both
// handle lists. Safe to call when nothing is outstanding. Unlike Arm it waits
// for any in-flight operation rather than dropping — a disarm requested by an
// edit or delete must actually happen.
func (c *Cascade) Disarm(ctx context.Context, id uuid.UUID) error {
	lock := c.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	appt, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler.Cascade.Disarm: %w", err)
	}

	if len(appt.AlarmHandles) == 0 && len(appt.NagHandles) == 0 {
		return nil
	}

	c.cancelAll(ctx, appt.AlarmHandles)
	c.cancelAll(ctx, appt.NagHandles)

	if err := c.repo.UpdateHandles(ctx, appt.ID, nil, nil); err != nil {
		return fmt.Errorf("scheduler.Cascade.Disarm: %w", err)
	}

	slog.Info("appointment disarmed", "appointment_id", appt.ID)
	return nil
}

// CancelNags cancels and clears only the nag series, leaving the reminder and
// departure alerts in place — those are informational and may still
// legitimately fire after the user has verified departure.
func (c *Cascade) CancelNags(ctx context.Context, id uuid.UUID) error {
	lock := c.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	appt, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler.Cascade.CancelNags: %w", err)
	}

	if len(appt.NagHandles) == 0 {
		return nil
	}

	c.cancelAll(ctx, appt.NagHandles)

	if err := c.repo.UpdateHandles(ctx, appt.ID, appt.AlarmHandles, nil); err != nil {
		return fmt.Errorf("scheduler.Cascade.CancelNags: %w", err)
	}

	slog.Info("nag series cancelled", "appointment_id", appt.ID)
	return nil
}

// cancelAll revokes every handle best-effort. A handle that already fired or
// was never known to the delivery subsystem is treated as already gone.
func (c *Cascade) cancelAll(ctx context.Context, handles []domain.AlarmHandle) {
	for _, h := range handles {
		if err := c.alerts.Cancel(ctx, h); err != nil {
			slog.Debug("cancel alert", "handle", string(h), "error", err)
		}
	}
}
