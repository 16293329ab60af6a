package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
	"github.com/seojinpark/ontime/backend/internal/repo"
	"github.com/seojinpark/ontime/backend/internal/service"
)

// ---- mocks -----------------------------------------------------------------

// mockRepo is a hand-written test double for repo.AppointmentRepo.
// Set only the method fields your test needs.
type mockRepo struct {
	create        func(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
	getByID       func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	list          func(ctx context.Context) ([]domain.Appointment, error)
	update        func(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
	updateHandles func(ctx context.Context, id uuid.UUID, alarmHandles, nagHandles []domain.AlarmHandle) error
	delete        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockRepo) Create(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	return m.create(ctx, a)
}
func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return m.getByID(ctx, id)
}
func (m *mockRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	return m.list(ctx)
}
func (m *mockRepo) Update(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	return m.update(ctx, a)
}
func (m *mockRepo) UpdateHandles(ctx context.Context, id uuid.UUID, alarmHandles, nagHandles []domain.AlarmHandle) error {
	return m.updateHandles(ctx, id, alarmHandles, nagHandles)
}
func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}

// compile-time check: mockRepo must satisfy repo.AppointmentRepo.
var _ repo.AppointmentRepo = (*mockRepo)(nil)

// recordingCascade records which cascade operations were invoked, in order.
type recordingCascade struct {
	calls []string

	armErr    error
	disarmErr error
}

func (c *recordingCascade) Arm(_ context.Context, id uuid.UUID) error {
	c.calls = append(c.calls, "arm")
	return c.armErr
}
func (c *recordingCascade) Disarm(_ context.Context, id uuid.UUID) error {
	c.calls = append(c.calls, "disarm")
	return c.disarmErr
}
func (c *recordingCascade) CancelNags(_ context.Context, id uuid.UUID) error {
	c.calls = append(c.calls, "cancel_nags")
	return nil
}

var _ service.CascadeScheduler = (*recordingCascade)(nil)

// ---- helpers ---------------------------------------------------------------

var home = domain.Place{Name: "Home", Address: "1 Teheran-ro", Lat: 37.50, Lng: 127.03}

func validDraft() domain.Draft {
	return domain.Draft{
		MeetingTitle: "Project kickoff",
		OriginPlace:  &home,
		DestPlace:    &domain.Place{Name: "Office", Lat: 37.57, Lng: 126.98},
		MeetingDate:  "2025-03-10",
		MeetingTime:  "18:00",
		Route:        &domain.RouteSummary{TotalTimeMinutes: 45},
	}
}

// passthroughRepo returns a mockRepo whose create/get/update echo their input,
// storing whatever was last written into out.
func passthroughRepo(out *domain.Appointment) *mockRepo {
	return &mockRepo{
		create: func(_ context.Context, a domain.Appointment) (domain.Appointment, error) {
			*out = a
			return a, nil
		},
		getByID: func(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
			if out.ID != id {
				return domain.Appointment{}, domain.ErrNotFound
			}
			return *out, nil
		},
		update: func(_ context.Context, a domain.Appointment) (domain.Appointment, error) {
			// Mirror the real repo: Update never writes the handle columns.
			a.AlarmHandles = out.AlarmHandles
			a.NagHandles = out.NagHandles
			*out = a
			return a, nil
		},
		delete: func(_ context.Context, _ uuid.UUID) error { return nil },
	}
}

func newService(r repo.AppointmentRepo, cascade service.CascadeScheduler) *service.AppointmentService {
	return service.NewAppointmentService(r, cascade, 10, departure.DefaultProofOptions(), time.UTC)
}

// ---- Save ------------------------------------------------------------------

func TestAppointmentService_Save_OK(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	got, err := svc.Save(context.Background(), validDraft())

	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, got.ID, "save must assign an id")
	assert.True(t, got.IsConfirmed)
	assert.False(t, got.IsVerified)
	assert.Equal(t, []string{"arm"}, cascade.calls)
}

func TestAppointmentService_Save_MissingFields(t *testing.T) {
	cascade := &recordingCascade{}
	svc := newService(&mockRepo{}, cascade)

	draft := validDraft()
	draft.Route = nil
	draft.MeetingTime = ""

	_, err := svc.Save(context.Background(), draft)

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "meeting_time")
	assert.ErrorContains(t, err, "route")
	assert.Empty(t, cascade.calls, "nothing is armed for an invalid draft")
}

func TestAppointmentService_Save_ArmFailureKeepsRecord(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{armErr: assert.AnError}
	svc := newService(passthroughRepo(&stored), cascade)

	_, err := svc.Save(context.Background(), validDraft())

	require.Error(t, err)
	assert.True(t, stored.IsConfirmed, "confirmation is not rolled back on delivery failure")
}

// ---- Edit / Confirm --------------------------------------------------------

func TestAppointmentService_Edit_DisarmsAndUnconfirms(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)
	stored.IsVerified = true // pretend proof had been captured

	changed := validDraft()
	changed.MeetingTime = "19:30"

	got, err := svc.Edit(context.Background(), saved.ID, changed)

	require.NoError(t, err)
	assert.Equal(t, []string{"arm", "disarm"}, cascade.calls)
	assert.Equal(t, "19:30", got.MeetingTime)
	assert.False(t, got.IsConfirmed, "edit drops confirmation until re-confirmed")
	assert.False(t, got.IsVerified, "edit drops verification")
	assert.Empty(t, got.AlarmHandles)
	assert.Empty(t, got.NagHandles)
}

func TestAppointmentService_Edit_NotFound(t *testing.T) {
	svc := newService(&mockRepo{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, domain.ErrNotFound
		},
	}, &recordingCascade{})

	_, err := svc.Edit(context.Background(), uuid.New(), validDraft())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppointmentService_Confirm_RearmsAfterEdit(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)
	_, err = svc.Edit(context.Background(), saved.ID, validDraft())
	require.NoError(t, err)

	got, err := svc.Confirm(context.Background(), saved.ID)

	require.NoError(t, err)
	assert.True(t, got.IsConfirmed)
	assert.Equal(t, []string{"arm", "disarm", "arm"}, cascade.calls)
}

func TestAppointmentService_Confirm_IncompleteFields(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)

	incomplete := validDraft()
	incomplete.OriginPlace = nil
	_, err = svc.Edit(context.Background(), saved.ID, incomplete)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), saved.ID)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []string{"arm", "disarm"}, cascade.calls, "no re-arm for an incomplete appointment")
}

// ---- CaptureProof ----------------------------------------------------------

func TestAppointmentService_CaptureProof_OKVerifies(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)

	// Departure is 17:05; capture two minutes early at the origin.
	verdict, err := svc.CaptureProof(context.Background(), saved.ID, service.ProofCapture{
		CapturedAt: time.Date(2025, 3, 10, 17, 3, 0, 0, time.UTC),
		Coordinate: home.Coordinate(),
	})

	require.NoError(t, err)
	assert.Equal(t, departure.ResultOK, verdict.Result)
	assert.Equal(t, -2*time.Minute, verdict.DeltaFromDeparture)
	assert.True(t, stored.IsVerified)
	assert.Equal(t, []string{"arm", "cancel_nags"}, cascade.calls)
}

func TestAppointmentService_CaptureProof_RejectionLeavesState(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)
	cascade.calls = nil

	verdict, err := svc.CaptureProof(context.Background(), saved.ID, service.ProofCapture{
		CapturedAt: time.Date(2025, 3, 10, 17, 20, 0, 0, time.UTC), // 15 min late
		Coordinate: home.Coordinate(),
	})

	require.NoError(t, err)
	assert.Equal(t, departure.ResultTooLate, verdict.Result)
	assert.False(t, stored.IsVerified)
	assert.Empty(t, cascade.calls, "a rejected capture must not touch the cascade")
}

func TestAppointmentService_CaptureProof_UnconfirmedIsUnknown(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	svc := newService(passthroughRepo(&stored), cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)
	// An edit keeps all five fields but drops confirmation.
	_, err = svc.Edit(context.Background(), saved.ID, validDraft())
	require.NoError(t, err)
	cascade.calls = nil

	// On time and at the origin — would be accepted were the appointment
	// still confirmed.
	verdict, err := svc.CaptureProof(context.Background(), saved.ID, service.ProofCapture{
		CapturedAt: time.Date(2025, 3, 10, 17, 3, 0, 0, time.UTC),
		Coordinate: home.Coordinate(),
	})

	require.NoError(t, err)
	assert.Equal(t, departure.ResultUnknown, verdict.Result)
	assert.False(t, stored.IsVerified, "unconfirmed appointment must not become verified")
	assert.Empty(t, cascade.calls)
}

func TestAppointmentService_CaptureProof_IncompleteIsUnknown(t *testing.T) {
	appt := domain.Appointment{ID: uuid.New(), OriginPlace: &home, IsConfirmed: true} // no date/time/route
	svc := newService(&mockRepo{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Appointment, error) {
			return appt, nil
		},
	}, &recordingCascade{})

	verdict, err := svc.CaptureProof(context.Background(), appt.ID, service.ProofCapture{
		CapturedAt: time.Now(),
		Coordinate: home.Coordinate(),
	})

	require.NoError(t, err)
	assert.Equal(t, departure.ResultUnknown, verdict.Result)
}

// ---- Delete ----------------------------------------------------------------

func TestAppointmentService_Delete_DisarmsFirst(t *testing.T) {
	var stored domain.Appointment
	cascade := &recordingCascade{}
	deleted := false
	r := passthroughRepo(&stored)
	r.delete = func(_ context.Context, _ uuid.UUID) error {
		// Disarm must already have happened by the time the record goes away.
		assert.Contains(t, cascade.calls, "disarm")
		deleted = true
		return nil
	}
	svc := newService(r, cascade)

	saved, err := svc.Save(context.Background(), validDraft())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), saved.ID))
	assert.True(t, deleted)
}

// ---- List ------------------------------------------------------------------

func TestAppointmentService_List_UpcomingFiltersAndSorts(t *testing.T) {
	later := validDraft()
	later.MeetingTime = "20:00"
	past := validDraft()
	past.MeetingDate = "2025-03-09"

	mk := func(d domain.Draft) domain.Appointment {
		return domain.Appointment{ID: uuid.New(), MeetingDate: d.MeetingDate, MeetingTime: d.MeetingTime, Route: d.Route}
	}
	soonAppt, laterAppt, pastAppt := mk(validDraft()), mk(later), mk(past)
	undated := domain.Appointment{ID: uuid.New()}

	svc := newService(&mockRepo{
		list: func(_ context.Context) ([]domain.Appointment, error) {
			return []domain.Appointment{laterAppt, pastAppt, soonAppt, undated}, nil
		},
	}, &recordingCascade{})
	service.SetClock(svc, func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })

	got, err := svc.List(context.Background(), true)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, soonAppt.ID, got[0].ID, "soonest meeting first")
	assert.Equal(t, laterAppt.ID, got[1].ID)
}

func TestAppointmentService_List_AllReturnsNonNil(t *testing.T) {
	svc := newService(&mockRepo{
		list: func(_ context.Context) ([]domain.Appointment, error) { return nil, nil },
	}, &recordingCascade{})

	got, err := svc.List(context.Background(), false)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
