package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
)

// computeRequest is the JSON body for the pure departure-time calculation.
// BufferMinutes falls back to the server's configured buffer when omitted.
type computeRequest struct {
	MeetingDate   string               `json:"meeting_date"`
	MeetingTime   string               `json:"meeting_time"`
	Route         *domain.RouteSummary `json:"route"`
	BufferMinutes *int                 `json:"buffer_minutes,omitempty"`
}

// computeResponse reports the computed departure instant, or known=false when
// the inputs are incomplete — which is a legitimate state, not an error.
type computeResponse struct {
	Known       bool       `json:"known"`
	DepartureAt *time.Time `json:"departure_at,omitempty"`
}

// evaluateRequest is the JSON body for the pure proof evaluation. The
// tolerance fields fall back to the server's configured proof options when
// omitted or zero.
type evaluateRequest struct {
	DepartureAt      time.Time         `json:"departure_at"`
	CapturedAt       time.Time         `json:"captured_at"`
	Origin           domain.Coordinate `json:"origin"`
	Capture          domain.Coordinate `json:"capture"`
	RadiusMeters     float64           `json:"radius_meters,omitempty"`
	EarlyToleranceMs int64             `json:"early_tolerance_ms,omitempty"`
	LateToleranceMs  int64             `json:"late_tolerance_ms,omitempty"`
}

// ComputeDeparture handles POST /departure/compute.
func (s *Server) ComputeDeparture(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	buffer := s.bufferMinutes
	if req.BufferMinutes != nil {
		buffer = *req.BufferMinutes
	}

	at, ok := departure.Compute(req.MeetingDate, req.MeetingTime, req.Route, buffer, s.loc)
	if !ok {
		writeJSON(w, http.StatusOK, computeResponse{Known: false})
		return
	}
	writeJSON(w, http.StatusOK, computeResponse{Known: true, DepartureAt: &at})
}

// EvaluateProof handles POST /departure/evaluate.
func (s *Server) EvaluateProof(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	opts := s.proofOpts
	if req.RadiusMeters > 0 {
		opts.RadiusMeters = req.RadiusMeters
	}
	if req.EarlyToleranceMs > 0 {
		opts.EarlyTolerance = time.Duration(req.EarlyToleranceMs) * time.Millisecond
	}
	if req.LateToleranceMs > 0 {
		opts.LateTolerance = time.Duration(req.LateToleranceMs) * time.Millisecond
	}

	verdict := departure.Evaluate(req.DepartureAt, req.CapturedAt, req.Origin, req.Capture, opts)
	writeJSON(w, http.StatusOK, verdictToResponse(verdict))
}
