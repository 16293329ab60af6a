package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
	"github.com/seojinpark/ontime/backend/internal/service"
)

// appointmentResponse is the JSON shape of one appointment. DepartureAt is
// derived on the way out so clients never compute it themselves; AlarmCount
// and NagCount surface how many alerts are armed without leaking the opaque
// handles.
type appointmentResponse struct {
	ID           uuid.UUID            `json:"id"`
	MeetingTitle string               `json:"meeting_title,omitempty"`
	OriginPlace  *domain.Place        `json:"origin_place,omitempty"`
	DestPlace    *domain.Place        `json:"dest_place,omitempty"`
	MeetingDate  string               `json:"meeting_date,omitempty"`
	MeetingTime  string               `json:"meeting_time,omitempty"`
	Route        *domain.RouteSummary `json:"route,omitempty"`
	IsConfirmed  bool                 `json:"is_confirmed"`
	IsVerified   bool                 `json:"is_verified"`
	DepartureAt  *time.Time           `json:"departure_at,omitempty"`
	AlarmCount   int                  `json:"alarm_count"`
	NagCount     int                  `json:"nag_count"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// draftRequest is the JSON body for creating and editing appointments.
type draftRequest struct {
	MeetingTitle string               `json:"meeting_title"`
	OriginPlace  *domain.Place        `json:"origin_place"`
	DestPlace    *domain.Place        `json:"dest_place"`
	MeetingDate  string               `json:"meeting_date"`
	MeetingTime  string               `json:"meeting_time"`
	Route        *domain.RouteSummary `json:"route"`
}

// proofRequest is the JSON body for submitting a proof-of-departure capture.
// CapturedAt defaults to the server clock when omitted.
type proofRequest struct {
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
}

// verdictResponse is the JSON shape of a proof verdict.
type verdictResponse struct {
	Result               string     `json:"result"`
	CapturedAt           *time.Time `json:"captured_at,omitempty"`
	DeltaFromDepartureMs int64      `json:"delta_from_departure_ms"`
	DistanceFromOriginM  float64    `json:"distance_from_origin_m"`
}

// CreateAppointment handles POST /appointments: save a completed draft as a
// confirmed, armed appointment.
func (s *Server) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	draft, err := decodeDraft(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	created, err := s.appointments.Save(r.Context(), draft)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeValidation(w, err)
			return
		case created.ID == uuid.Nil:
			writeInternal(w)
			return
		}
		// The appointment was persisted but arming its alerts failed. Return
		// the record anyway — losing the new id would strand a confirmed,
		// stored appointment; the client can retry via POST /{id}/arm.
	}

	writeJSON(w, http.StatusCreated, s.appointmentToResponse(created))
}

// ListAppointments handles GET /appointments.
// With ?upcoming=true only appointments whose meeting instant is still in the
// future are returned, soonest first.
func (s *Server) ListAppointments(w http.ResponseWriter, r *http.Request) {
	upcoming := r.URL.Query().Get("upcoming") == "true"

	appts, err := s.appointments.List(r.Context(), upcoming)
	if err != nil {
		writeInternal(w)
		return
	}

	data := make([]appointmentResponse, len(appts))
	for i, a := range appts {
		data[i] = s.appointmentToResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// GetAppointment handles GET /appointments/{id}.
func (s *Server) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	appt, err := s.appointments.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "appointment not found")
			return
		}
		writeInternal(w)
		return
	}

	writeJSON(w, http.StatusOK, s.appointmentToResponse(appt))
}

// UpdateAppointment handles PUT /appointments/{id}: apply edits. The service
// disarms the cascade and clears confirmation; re-confirmation is a separate
// POST /appointments/{id}/confirm.
func (s *Server) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	draft, err := decodeDraft(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	updated, err := s.appointments.Edit(r.Context(), id, draft)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "appointment not found")
			return
		}
		writeInternal(w)
		return
	}

	writeJSON(w, http.StatusOK, s.appointmentToResponse(updated))
}

// ConfirmAppointment handles POST /appointments/{id}/confirm.
func (s *Server) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	confirmed, err := s.appointments.Confirm(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeNotFound(w, "appointment not found")
		case errors.Is(err, domain.ErrValidation):
			writeValidation(w, err)
		default:
			writeInternal(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, s.appointmentToResponse(confirmed))
}

// ArmAppointment handles POST /appointments/{id}/arm.
func (s *Server) ArmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.appointments.Arm(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeNotFound(w, "appointment not found")
		case errors.Is(err, domain.ErrValidation):
			writeValidation(w, err)
		default:
			writeInternal(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DisarmAppointment handles POST /appointments/{id}/disarm.
func (s *Server) DisarmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.appointments.Disarm(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "appointment not found")
			return
		}
		writeInternal(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitProof handles POST /appointments/{id}/proof: evaluate one capture
// attempt. The verdict is always 200 — rejection reasons (too_early,
// too_late, too_far) are data, not HTTP errors.
func (s *Server) SubmitProof(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	capture := service.ProofCapture{
		Coordinate: domain.Coordinate{Lat: req.Lat, Lng: req.Lng},
	}
	if req.CapturedAt != nil {
		capture.CapturedAt = *req.CapturedAt
	}

	verdict, err := s.appointments.CaptureProof(r.Context(), id, capture)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "appointment not found")
			return
		}
		writeInternal(w)
		return
	}

	writeJSON(w, http.StatusOK, verdictToResponse(verdict))
}

// DeleteAppointment handles DELETE /appointments/{id}.
func (s *Server) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.appointments.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "appointment not found")
			return
		}
		writeInternal(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- mapping helpers --------------------------------------------------------

// parseID reads the {id} path parameter. Writes a 404 and returns false when
// it is not a valid UUID — an unparseable id can never name a resource.
func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "appointment not found")
		return uuid.UUID{}, false
	}
	return id, true
}

// decodeDraft parses a draftRequest body into a domain.Draft.
func decodeDraft(r *http.Request) (domain.Draft, error) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.Draft{}, errors.New("invalid request body")
	}
	return domain.Draft{
		MeetingTitle: req.MeetingTitle,
		OriginPlace:  req.OriginPlace,
		DestPlace:    req.DestPlace,
		MeetingDate:  req.MeetingDate,
		MeetingTime:  req.MeetingTime,
		Route:        req.Route,
	}, nil
}

// appointmentToResponse converts a domain.Appointment into its JSON shape,
// deriving the departure instant from the current fields.
func (s *Server) appointmentToResponse(a domain.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:           a.ID,
		MeetingTitle: a.MeetingTitle,
		OriginPlace:  a.OriginPlace,
		DestPlace:    a.DestPlace,
		MeetingDate:  a.MeetingDate,
		MeetingTime:  a.MeetingTime,
		Route:        a.Route,
		IsConfirmed:  a.IsConfirmed,
		IsVerified:   a.IsVerified,
		AlarmCount:   len(a.AlarmHandles),
		NagCount:     len(a.NagHandles),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if at, ok := departure.Compute(a.MeetingDate, a.MeetingTime, a.Route, s.bufferMinutes, s.loc); ok {
		resp.DepartureAt = &at
	}
	return resp
}

// verdictToResponse converts a departure.Verdict into its JSON shape.
func verdictToResponse(v departure.Verdict) verdictResponse {
	resp := verdictResponse{
		Result:               string(v.Result),
		DeltaFromDepartureMs: v.DeltaFromDeparture.Milliseconds(),
		DistanceFromOriginM:  v.DistanceFromOrigin,
	}
	if !v.CapturedAt.IsZero() {
		at := v.CapturedAt
		resp.CapturedAt = &at
	}
	return resp
}
