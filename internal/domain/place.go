// Package domain contains the core data types for the ontime departure-alarm
// application. This package has zero dependencies beyond uuid and is imported
// by every other internal package (repo, departure, scheduler, service, handler).
package domain

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a named location selected by the user, either as the origin
// (usually home) or the destination of an appointment.
// Immutable value; owned by whichever Appointment or Draft references it.
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Coordinate returns the place's position as a Coordinate value.
func (p Place) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lng: p.Lng}
}
