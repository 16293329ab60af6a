package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

// Dispatcher is an in-process Scheduler backed by a robfig/cron runner.
// Each scheduled alert becomes one cron entry with a one-shot schedule that
// fires at its absolute instant; the handle→entry map makes every entry
// individually cancelable.
//
// Entries do not survive a process restart. That is acceptable under the
// delivery contract: cancellation of an unknown handle is a no-op, and the
// server re-arms confirmed appointments at boot.
type Dispatcher struct {
	cron    *cron.Cron
	deliver func(Fired)

	mu      sync.Mutex
	entries map[domain.AlarmHandle]cron.EntryID
}

var _ Scheduler = (*Dispatcher)(nil)

// NewDispatcher builds a Dispatcher that hands every fired alert to deliver.
// Call Start before scheduling and Stop during shutdown.
func NewDispatcher(deliver func(Fired)) *Dispatcher {
	if deliver == nil {
		deliver = func(Fired) {}
	}
	return &Dispatcher{
		cron:    cron.New(),
		deliver: deliver,
		entries: make(map[domain.AlarmHandle]cron.EntryID),
	}
}

// Start begins the dispatch loop in its own goroutine.
func (d *Dispatcher) Start() {
	d.cron.Start()
}

// Stop halts the dispatch loop and returns a context that is done once all
// in-flight deliveries have completed.
func (d *Dispatcher) Stop() context.Context {
	return d.cron.Stop()
}

// ScheduleAt registers an alert to fire once at the given instant.
func (d *Dispatcher) ScheduleAt(_ context.Context, at time.Time, a Alert) (domain.AlarmHandle, error) {
	if !at.After(time.Now()) {
		return "", fmt.Errorf("alert.Dispatcher.ScheduleAt: instant %s is not in the future", at.Format(time.RFC3339))
	}

	h := domain.AlarmHandle(uuid.NewString())

	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[h] = d.cron.Schedule(onceAt{at: at}, cron.FuncJob(func() {
		d.fire(h, at, a)
	}))
	return h, nil
}

// Cancel revokes a scheduled alert. Unknown or already-fired handles are
// silently ignored.
func (d *Dispatcher) Cancel(_ context.Context, h domain.AlarmHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.entries[h]
	if !ok {
		return nil
	}
	d.cron.Remove(id)
	delete(d.entries, h)
	return nil
}

// Pending returns the number of alerts currently scheduled and not yet fired.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// fire runs on the cron goroutine when an entry's instant arrives.
func (d *Dispatcher) fire(h domain.AlarmHandle, at time.Time, a Alert) {
	d.mu.Lock()
	if id, ok := d.entries[h]; ok {
		d.cron.Remove(id)
		delete(d.entries, h)
	}
	d.mu.Unlock()

	slog.Info("alert fired",
		"kind", string(a.Kind),
		"appointment_id", a.AppointmentID,
		"scheduled_for", at,
	)
	d.deliver(Fired{Alert: a, Handle: h, At: at})
}

// onceAt is a cron.Schedule that fires exactly once, at an absolute instant.
// After the instant has passed it reports no next activation, and the entry
// is removed by fire anyway.
type onceAt struct {
	at time.Time
}

func (s onceAt) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
