package service

import "time"

// SetClock pins the service's clock to a fixed function in tests.
func SetClock(s *AppointmentService, now func() time.Time) {
	s.now = now
}
