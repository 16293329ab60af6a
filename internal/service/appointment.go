// Package service contains the business logic for the ontime API.
// The AppointmentService is the appointment lifecycle state machine:
// Draft → Confirmed → Verified, with edits dropping back to an unconfirmed
// state until re-confirmed. It never talks to the alert-delivery subsystem
// directly — all arming and disarming goes through the cascade scheduler.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
	"github.com/seojinpark/ontime/backend/internal/repo"
)

// CascadeScheduler defines the alarm operations the lifecycle depends on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets service
// tests inject a fake without a real alert dispatcher.
type CascadeScheduler interface {
	Arm(ctx context.Context, id uuid.UUID) error
	Disarm(ctx context.Context, id uuid.UUID) error
	CancelNags(ctx context.Context, id uuid.UUID) error
}

// ProofCapture is one proof-of-departure attempt: the instant the photo was
// taken and the location sample recorded alongside it. Obtaining these (and
// deleting the media afterwards) is the capture flow's job, not ours.
type ProofCapture struct {
	CapturedAt time.Time
	Coordinate domain.Coordinate
}

// AppointmentService implements the appointment lifecycle.
type AppointmentService struct {
	repo    repo.AppointmentRepo
	cascade CascadeScheduler

	bufferMinutes int
	proofOpts     departure.ProofOptions
	loc           *time.Location

	// now is the clock; replaced in tests.
	now func() time.Time
}

// NewAppointmentService constructs an AppointmentService.
// bufferMinutes and proofOpts fall back to package defaults when zero;
// loc defaults to the process-local timezone.
func NewAppointmentService(r repo.AppointmentRepo, cascade CascadeScheduler, bufferMinutes int, proofOpts departure.ProofOptions, loc *time.Location) *AppointmentService {
	if bufferMinutes <= 0 {
		bufferMinutes = departure.DefaultBufferMinutes
	}
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentService{
		repo:          r,
		cascade:       cascade,
		bufferMinutes: bufferMinutes,
		proofOpts:     proofOpts,
		loc:           loc,
		now:           time.Now,
	}
}

// Save promotes a completed draft into a confirmed appointment: assigns an
// id, persists it, and arms the alarm cascade.
//
// Returns domain.ErrValidation naming the missing fields when the draft is
// incomplete. An alert-delivery failure after a successful save is returned
// to the caller, but the appointment stays persisted and confirmed — its
// handle lists reflect whatever alerts did get scheduled.
func (s *AppointmentService) Save(ctx context.Context, d domain.Draft) (domain.Appointment, error) {
	if err := validateDraft(d); err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		ID:           uuid.New(),
		MeetingTitle: strings.TrimSpace(d.MeetingTitle),
		OriginPlace:  d.OriginPlace,
		DestPlace:    d.DestPlace,
		MeetingDate:  d.MeetingDate,
		MeetingTime:  d.MeetingTime,
		Route:        d.Route,
		IsConfirmed:  true,
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Save: %w", err)
	}

	if err := s.cascade.Arm(ctx, created.ID); err != nil {
		return created, fmt.Errorf("service.AppointmentService.Save: %w", err)
	}

	// Re-read to pick up the handle lists written by Arm.
	armed, err := s.repo.GetByID(ctx, created.ID)
	if err != nil {
		return created, fmt.Errorf("service.AppointmentService.Save: %w", err)
	}
	return armed, nil
}

// GetByID returns a single appointment by ID.
func (s *AppointmentService) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.GetByID: %w", err)
	}
	return appt, nil
}

// List returns appointments ordered by meeting instant ascending. With
// upcomingOnly set, appointments whose meeting instant has passed (or cannot
// be determined) are dropped — mirroring the upcoming-appointments view.
// Always returns a non-nil slice so callers can safely range over it.
func (s *AppointmentService) List(ctx context.Context, upcomingOnly bool) ([]domain.Appointment, error) {
	appts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.AppointmentService.List: %w", err)
	}

	if !upcomingOnly {
		if appts == nil {
			appts = []domain.Appointment{}
		}
		return appts, nil
	}

	now := s.now()
	upcoming := []domain.Appointment{}
	for _, a := range appts {
		if at, ok := a.MeetingAt(s.loc); ok && at.After(now) {
			upcoming = append(upcoming, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		ti, _ := upcoming[i].MeetingAt(s.loc)
		tj, _ := upcoming[j].MeetingAt(s.loc)
		return ti.Before(tj)
	})
	return upcoming, nil
}

// Edit applies a draft's fields to an existing appointment. Any field
// mutation invalidates the armed cascade, so the appointment is disarmed
// first and both IsConfirmed and IsVerified are cleared; the user must
// explicitly re-confirm before the cascade is armed again.
func (s *AppointmentService) Edit(ctx context.Context, id uuid.UUID, d domain.Draft) (domain.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Edit: %w", err)
	}

	// Disarm before touching fields: the scheduled alerts describe the old
	// departure instant and must not outlive it.
	if err := s.cascade.Disarm(ctx, id); err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Edit: %w", err)
	}

	// Disarm already cancelled and cleared the stored handle lists; Update
	// does not write the handle columns, so nothing here can resurrect them.
	appt.MeetingTitle = strings.TrimSpace(d.MeetingTitle)
	appt.OriginPlace = d.OriginPlace
	appt.DestPlace = d.DestPlace
	appt.MeetingDate = d.MeetingDate
	appt.MeetingTime = d.MeetingTime
	appt.Route = d.Route
	appt.IsConfirmed = false
	appt.IsVerified = false

	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Edit: %w", err)
	}
	return updated, nil
}

// Confirm re-validates an edited appointment, marks it confirmed, and re-arms
// the cascade. Returns domain.ErrValidation when required fields are missing.
func (s *AppointmentService) Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Confirm: %w", err)
	}

	if err := validateDraft(draftOf(appt)); err != nil {
		return domain.Appointment{}, err
	}

	appt.IsConfirmed = true
	if _, err := s.repo.Update(ctx, appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("service.AppointmentService.Confirm: %w", err)
	}

	if err := s.cascade.Arm(ctx, id); err != nil {
		return appt, fmt.Errorf("service.AppointmentService.Confirm: %w", err)
	}

	armed, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return appt, fmt.Errorf("service.AppointmentService.Confirm: %w", err)
	}
	return armed, nil
}

// CaptureProof evaluates one proof-of-departure attempt against the
// appointment's departure instant and origin. On an OK verdict the
// appointment becomes verified and its nag series is cancelled; any other
// verdict leaves the appointment untouched.
//
// An unconfirmed appointment, one without a computable departure instant, or
// one without an origin place yields an Unknown verdict rather than an error.
func (s *AppointmentService) CaptureProof(ctx context.Context, id uuid.UUID, capture ProofCapture) (departure.Verdict, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return departure.Verdict{}, fmt.Errorf("service.AppointmentService.CaptureProof: %w", err)
	}

	// Verified is only reachable from Confirmed. An edited appointment keeps
	// its fields but loses confirmation, so a capture against it proves
	// nothing until the user re-confirms.
	if !appt.IsConfirmed {
		return departure.Verdict{Result: departure.ResultUnknown}, nil
	}

	departureAt, ok := departure.Compute(appt.MeetingDate, appt.MeetingTime, appt.Route, s.bufferMinutes, s.loc)
	if !ok || appt.OriginPlace == nil {
		return departure.Verdict{Result: departure.ResultUnknown}, nil
	}

	capturedAt := capture.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now()
	}

	verdict := departure.Evaluate(departureAt, capturedAt, appt.OriginPlace.Coordinate(), capture.Coordinate, s.proofOpts)
	if verdict.Result != departure.ResultOK {
		return verdict, nil
	}

	appt.IsVerified = true
	if _, err := s.repo.Update(ctx, appt); err != nil {
		return verdict, fmt.Errorf("service.AppointmentService.CaptureProof: %w", err)
	}
	if err := s.cascade.CancelNags(ctx, id); err != nil {
		return verdict, fmt.Errorf("service.AppointmentService.CaptureProof: %w", err)
	}
	return verdict, nil
}

// Delete disarms the appointment's cascade and removes the record.
// Terminal from any lifecycle state.
func (s *AppointmentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.cascade.Disarm(ctx, id); err != nil {
		return fmt.Errorf("service.AppointmentService.Delete: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.AppointmentService.Delete: %w", err)
	}
	return nil
}

// Arm re-arms the cascade for a confirmed appointment, e.g. after a process
// restart invalidated the in-memory alert entries.
func (s *AppointmentService) Arm(ctx context.Context, id uuid.UUID) error {
	if err := s.cascade.Arm(ctx, id); err != nil {
		return fmt.Errorf("service.AppointmentService.Arm: %w", err)
	}
	return nil
}

// Disarm cancels every outstanding alert for the appointment.
func (s *AppointmentService) Disarm(ctx context.Context, id uuid.UUID) error {
	if err := s.cascade.Disarm(ctx, id); err != nil {
		return fmt.Errorf("service.AppointmentService.Disarm: %w", err)
	}
	return nil
}

// validateDraft enforces the confirmation precondition: all five required
// fields must be present.
func validateDraft(d domain.Draft) error {
	if missing := d.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// draftOf views an appointment's editable fields as a draft for validation.
func draftOf(a domain.Appointment) domain.Draft {
	return domain.Draft{
		MeetingTitle: a.MeetingTitle,
		OriginPlace:  a.OriginPlace,
		DestPlace:    a.DestPlace,
		MeetingDate:  a.MeetingDate,
		MeetingTime:  a.MeetingTime,
		Route:        a.Route,
	}
}
