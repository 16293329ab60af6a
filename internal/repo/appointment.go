// Package repo contains all database access logic for the ontime API.
// No business logic lives here — only SQL and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AppointmentRepo defines the persistence operations for Appointments.
// The service and scheduler layers depend on this interface rather than the
// concrete Postgres implementation, which allows both to be unit-tested with
// hand-written mocks. Records survive process restarts, so a restarted server
// can still read and disarm previously armed handle lists.
type AppointmentRepo interface {
	// Create inserts a new appointment under the caller-assigned ID and
	// returns the persisted record (with created_at/updated_at populated).
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// GetByID retrieves a single appointment by its UUID primary key.
	// Returns domain.ErrNotFound if no appointment with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	// List returns all appointments ordered by meeting date and time
	// ascending, with incomplete (undated) appointments last.
	List(ctx context.Context) ([]domain.Appointment, error)

	// Update overwrites the appointment's fields and lifecycle flags and
	// returns the updated record. The alarm handle columns are deliberately
	// not written — only UpdateHandles touches those, so a lifecycle write
	// carrying handle lists read earlier can never clobber a cascade armed
	// concurrently under the scheduler's lock.
	// Returns domain.ErrNotFound if no appointment with that ID exists.
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// UpdateHandles replaces both alarm handle lists wholesale, never merging.
	// It is the only write path for the handle columns and is called by the
	// cascade scheduler exclusively, under its per-appointment lock.
	// Returns domain.ErrNotFound if no appointment with that ID exists.
	UpdateHandles(ctx context.Context, id uuid.UUID, alarmHandles, nagHandles []domain.AlarmHandle) error

	// Delete removes an appointment by ID. Returns domain.ErrNotFound if it
	// does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// pgAppointmentRepo is the Postgres implementation of AppointmentRepo.
type pgAppointmentRepo struct {
	db db
}

// NewAppointmentRepo constructs an AppointmentRepo backed by the provided db.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewAppointmentRepo(db db) AppointmentRepo {
	return &pgAppointmentRepo{db: db}
}

const appointmentColumns = `id, meeting_title, origin_place, dest_place,
		meeting_date, meeting_time, route, is_confirmed, is_verified,
		alarm_handles, nag_handles, created_at, updated_at`

// Create inserts a new appointment row and returns the full persisted record.
func (r *pgAppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	const q = `
		INSERT INTO appointments (id, meeting_title, origin_place, dest_place,
			meeting_date, meeting_time, route, is_confirmed, is_verified,
			alarm_handles, nag_handles)
		VALUES (@id, @meeting_title, @origin_place, @dest_place,
			@meeting_date, @meeting_time, @route, @is_confirmed, @is_verified,
			@alarm_handles, @nag_handles)
		RETURNING ` + appointmentColumns

	args, err := appointmentArgs(appt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.Create: %w", err)
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanAppointment(row)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves an appointment by primary key.
func (r *pgAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	const q = `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanAppointment(row)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.GetByID: %w", err)
	}
	return result, nil
}

// List returns all appointments, soonest meeting first, undated ones last.
func (r *pgAppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	const q = `
		SELECT ` + appointmentColumns + `
		FROM appointments
		ORDER BY meeting_date ASC NULLS LAST, meeting_time ASC NULLS LAST, created_at ASC`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.AppointmentRepo.List: %w", err)
	}
	defer rows.Close()

	var appts []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.AppointmentRepo.List: scan: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.AppointmentRepo.List: rows: %w", err)
	}

	return appts, nil
}

// Update overwrites the fields and lifecycle flags of an appointment and
// returns the updated record. The handle columns are left alone; see
// UpdateHandles.
func (r *pgAppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	const q = `
		UPDATE appointments
		SET meeting_title = @meeting_title,
		    origin_place  = @origin_place,
		    dest_place    = @dest_place,
		    meeting_date  = @meeting_date,
		    meeting_time  = @meeting_time,
		    route         = @route,
		    is_confirmed  = @is_confirmed,
		    is_verified   = @is_verified,
		    updated_at    = now()
		WHERE id = @id
		RETURNING ` + appointmentColumns

	args, err := appointmentArgs(appt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.Update: %w", err)
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanAppointment(row)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.Update: %w", err)
	}
	return result, nil
}

// UpdateHandles replaces both handle lists on an appointment.
func (r *pgAppointmentRepo) UpdateHandles(ctx context.Context, id uuid.UUID, alarmHandles, nagHandles []domain.AlarmHandle) error {
	const q = `
		UPDATE appointments
		SET alarm_handles = @alarm_handles,
		    nag_handles   = @nag_handles,
		    updated_at    = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":            id,
		"alarm_handles": handlesToStrings(alarmHandles),
		"nag_handles":   handlesToStrings(nagHandles),
	})
	if err != nil {
		return fmt.Errorf("repo.AppointmentRepo.UpdateHandles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.AppointmentRepo.UpdateHandles: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes an appointment by primary key.
func (r *pgAppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM appointments WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.AppointmentRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.AppointmentRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// appointmentArgs builds the NamedArgs shared by Create and Update.
// Places and the route are stored as jsonb; nil pointers become NULL, as do
// empty date/time strings. Handle lists are stored as text[].
func appointmentArgs(appt domain.Appointment) (pgx.NamedArgs, error) {
	originJSON, err := marshalNullable(appt.OriginPlace)
	if err != nil {
		return nil, fmt.Errorf("marshal origin_place: %w", err)
	}
	destJSON, err := marshalNullable(appt.DestPlace)
	if err != nil {
		return nil, fmt.Errorf("marshal dest_place: %w", err)
	}
	routeJSON, err := marshalNullable(appt.Route)
	if err != nil {
		return nil, fmt.Errorf("marshal route: %w", err)
	}

	return pgx.NamedArgs{
		"id":            appt.ID,
		"meeting_title": appt.MeetingTitle,
		"origin_place":  originJSON,
		"dest_place":    destJSON,
		"meeting_date":  nullableText(appt.MeetingDate),
		"meeting_time":  nullableText(appt.MeetingTime),
		"route":         routeJSON,
		"is_confirmed":  appt.IsConfirmed,
		"is_verified":   appt.IsVerified,
		"alarm_handles": handlesToStrings(appt.AlarmHandles),
		"nag_handles":   handlesToStrings(appt.NagHandles),
	}, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanAppointment
// to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanAppointment maps a single database row into a domain.Appointment.
func scanAppointment(s scanner) (domain.Appointment, error) {
	var (
		a            domain.Appointment
		id           pgtype.UUID
		originJSON   []byte
		destJSON     []byte
		routeJSON    []byte
		meetingDate  pgtype.Text
		meetingTime  pgtype.Text
		alarmHandles []string
		nagHandles   []string
	)

	err := s.Scan(&id, &a.MeetingTitle, &originJSON, &destJSON,
		&meetingDate, &meetingTime, &routeJSON, &a.IsConfirmed, &a.IsVerified,
		&alarmHandles, &nagHandles, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Appointment{}, domain.ErrNotFound
		}
		return domain.Appointment{}, err
	}

	a.ID = uuid.UUID(id.Bytes)
	if meetingDate.Valid {
		a.MeetingDate = meetingDate.String
	}
	if meetingTime.Valid {
		a.MeetingTime = meetingTime.String
	}

	if len(originJSON) > 0 {
		a.OriginPlace = &domain.Place{}
		if err := json.Unmarshal(originJSON, a.OriginPlace); err != nil {
			return domain.Appointment{}, fmt.Errorf("unmarshal origin_place: %w", err)
		}
	}
	if len(destJSON) > 0 {
		a.DestPlace = &domain.Place{}
		if err := json.Unmarshal(destJSON, a.DestPlace); err != nil {
			return domain.Appointment{}, fmt.Errorf("unmarshal dest_place: %w", err)
		}
	}
	if len(routeJSON) > 0 {
		a.Route = &domain.RouteSummary{}
		if err := json.Unmarshal(routeJSON, a.Route); err != nil {
			return domain.Appointment{}, fmt.Errorf("unmarshal route: %w", err)
		}
	}

	a.AlarmHandles = stringsToHandles(alarmHandles)
	a.NagHandles = stringsToHandles(nagHandles)

	return a, nil
}

// marshalNullable returns nil (→ SQL NULL) for a nil pointer, JSON bytes otherwise.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// nullableText maps an empty string to SQL NULL.
func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func handlesToStrings(hs []domain.AlarmHandle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = string(h)
	}
	return out
}

func stringsToHandles(ss []string) []domain.AlarmHandle {
	if len(ss) == 0 {
		return nil
	}
	out := make([]domain.AlarmHandle, len(ss))
	for i, s := range ss {
		out[i] = domain.AlarmHandle(s)
	}
	return out
}
