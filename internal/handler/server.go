// Package handler implements the HTTP handlers for the ontime API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, appointment.go, departure.go) but all share the same
// Server struct so they can access its dependencies.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seojinpark/ontime/backend/internal/departure"
	"github.com/seojinpark/ontime/backend/internal/domain"
	"github.com/seojinpark/ontime/backend/internal/service"
)

// AppointmentServicer defines the business operations the appointment
// handlers depend on. Defining the interface here (in the consumer package)
// follows the Go convention: "accept interfaces, return concrete types".
// It lets handler tests inject a mock without touching the database, the
// scheduler, or the alert dispatcher.
type AppointmentServicer interface {
	Save(ctx context.Context, d domain.Draft) (domain.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, upcomingOnly bool) ([]domain.Appointment, error)
	Edit(ctx context.Context, id uuid.UUID, d domain.Draft) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CaptureProof(ctx context.Context, id uuid.UUID, capture service.ProofCapture) (departure.Verdict, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Arm(ctx context.Context, id uuid.UUID) error
	Disarm(ctx context.Context, id uuid.UUID) error
}

// Server holds the handlers' dependencies. The buffer, proof options, and
// location feed the pure /departure endpoints and the departure_at field
// rendered on every appointment response.
type Server struct {
	appointments AppointmentServicer

	bufferMinutes int
	proofOpts     departure.ProofOptions
	loc           *time.Location
}

// NewServer constructs the Server with all its dependencies.
func NewServer(appointments AppointmentServicer, bufferMinutes int, proofOpts departure.ProofOptions, loc *time.Location) *Server {
	if bufferMinutes <= 0 {
		bufferMinutes = departure.DefaultBufferMinutes
	}
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		appointments:  appointments,
		bufferMinutes: bufferMinutes,
		proofOpts:     proofOpts,
		loc:           loc,
	}
}

// Routes returns a chi router with every endpoint registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", s.CreateAppointment)
		r.Get("/", s.ListAppointments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetAppointment)
			r.Put("/", s.UpdateAppointment)
			r.Delete("/", s.DeleteAppointment)
			r.Post("/confirm", s.ConfirmAppointment)
			r.Post("/arm", s.ArmAppointment)
			r.Post("/disarm", s.DisarmAppointment)
			r.Post("/proof", s.SubmitProof)
		})
	})

	r.Route("/departure", func(r chi.Router) {
		r.Post("/compute", s.ComputeDeparture)
		r.Post("/evaluate", s.EvaluateProof)
	})

	return r
}
