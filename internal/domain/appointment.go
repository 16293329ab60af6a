package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlarmHandle is an opaque token returned by the alert-delivery subsystem
// identifying one scheduled alert. The handle lists on Appointment are the
// only record the engine keeps of outstanding alerts, so they are persisted
// with the appointment and cancelled through the same handles later.
type AlarmHandle string

// Appointment is the central entity: one scheduled meeting the user must
// leave home for, together with the alert handles currently armed for it.
//
// Invariants maintained by the service and scheduler layers:
//   - IsConfirmed implies all five required fields are present
//     (origin, destination, meeting date, meeting time, route).
//   - A non-empty AlarmHandles list implies IsConfirmed and a computable
//     departure instant.
//   - IsVerified implies NagHandles is empty.
type Appointment struct {
	ID           uuid.UUID     `json:"id"`
	MeetingTitle string        `json:"meeting_title,omitempty"`
	OriginPlace  *Place        `json:"origin_place,omitempty"`
	DestPlace    *Place        `json:"dest_place,omitempty"`
	MeetingDate  string        `json:"meeting_date,omitempty"` // "2006-01-02"; empty when unset
	MeetingTime  string        `json:"meeting_time,omitempty"` // "15:04"; empty when unset
	Route        *RouteSummary `json:"route,omitempty"`
	IsConfirmed  bool          `json:"is_confirmed"`
	IsVerified   bool          `json:"is_verified"`
	AlarmHandles []AlarmHandle `json:"alarm_handles,omitempty"`
	NagHandles   []AlarmHandle `json:"nag_handles,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// MeetingAt parses the appointment's meeting date and time in the given
// location. Returns false when either field is unset or unparseable.
func (a Appointment) MeetingAt(loc *time.Location) (time.Time, bool) {
	return ParseMeetingAt(a.MeetingDate, a.MeetingTime, loc)
}

// Draft holds the editable fields of an appointment while the user is still
// filling them in. A draft has no identity, no handles, and no confirmation
// flag; it is promoted to an Appointment on save or discarded.
type Draft struct {
	MeetingTitle string        `json:"meeting_title,omitempty"`
	OriginPlace  *Place        `json:"origin_place,omitempty"`
	DestPlace    *Place        `json:"dest_place,omitempty"`
	MeetingDate  string        `json:"meeting_date,omitempty"`
	MeetingTime  string        `json:"meeting_time,omitempty"`
	Route        *RouteSummary `json:"route,omitempty"`
}

// MissingFields returns the names of required fields that are still unset.
// All five must be present before a draft can be confirmed.
func (d Draft) MissingFields() []string {
	var missing []string
	if d.OriginPlace == nil {
		missing = append(missing, "origin_place")
	}
	if d.DestPlace == nil {
		missing = append(missing, "dest_place")
	}
	if strings.TrimSpace(d.MeetingDate) == "" {
		missing = append(missing, "meeting_date")
	}
	if strings.TrimSpace(d.MeetingTime) == "" {
		missing = append(missing, "meeting_time")
	}
	if d.Route == nil {
		missing = append(missing, "route")
	}
	return missing
}

// ParseMeetingAt builds the meeting instant from a "2006-01-02" date and a
// "15:04" time in the given location. Returns false when either string is
// empty or any numeric component fails to parse. Not an error condition —
// an incomplete appointment legitimately has no meeting instant yet.
func ParseMeetingAt(meetingDate, meetingTime string, loc *time.Location) (time.Time, bool) {
	if meetingDate == "" || meetingTime == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	var y, m, d int
	if _, err := fmt.Sscanf(meetingDate, "%d-%d-%d", &y, &m, &d); err != nil {
		return time.Time{}, false
	}
	var hh, mm int
	if _, err := fmt.Sscanf(meetingTime, "%d:%d", &hh, &mm); err != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return time.Time{}, false
	}

	return time.Date(y, time.Month(m), d, hh, mm, 0, 0, loc), true
}
