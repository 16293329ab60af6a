package departure

import (
	"math"
	"time"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

// Result classifies one proof-of-departure capture attempt.
type Result string

const (
	ResultOK       Result = "ok"
	ResultTooEarly Result = "too_early"
	ResultTooLate  Result = "too_late"
	ResultTooFar   Result = "too_far"
	ResultUnknown  Result = "unknown"
)

// Default tolerances for proof evaluation. The late allowance is deliberately
// tighter than the early one: leaving a few minutes ahead of schedule is fine,
// but a capture long after the departure instant no longer proves anything.
const (
	DefaultRadiusMeters   = 200.0
	DefaultEarlyTolerance = 10 * time.Minute
	DefaultLateTolerance  = 5 * time.Minute
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

// ProofOptions are the tolerance parameters for Evaluate.
// Zero-valued fields fall back to the package defaults.
type ProofOptions struct {
	RadiusMeters   float64
	EarlyTolerance time.Duration
	LateTolerance  time.Duration
}

// DefaultProofOptions returns a ProofOptions with every field set to its default.
func DefaultProofOptions() ProofOptions {
	return ProofOptions{
		RadiusMeters:   DefaultRadiusMeters,
		EarlyTolerance: DefaultEarlyTolerance,
		LateTolerance:  DefaultLateTolerance,
	}
}

// Verdict is the outcome of one proof evaluation. The measurement fields are
// populated for every result except Unknown so the caller can show the user
// how early/late or how far away the capture was.
type Verdict struct {
	Result             Result
	CapturedAt         time.Time
	DeltaFromDeparture time.Duration
	DistanceFromOrigin float64 // meters
}

// Evaluate decides whether a proof-of-departure capture (a photo plus a
// location sample) was taken within the acceptable time-and-place window
// around the departure instant.
//
// The time check runs strictly before the distance check, so a capture that
// is both late and far from the origin reports TooLate, never TooFar. Both
// boundaries are inclusive on the OK side: a delta of exactly the tolerance
// still passes.
//
// Degenerate arithmetic (NaN/Inf coordinates, zero instants) yields Unknown
// rather than an error — the capture flow must never be crashed by a verdict.
func Evaluate(departureAt, capturedAt time.Time, origin, capture domain.Coordinate, opts ProofOptions) Verdict {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.EarlyTolerance <= 0 {
		opts.EarlyTolerance = DefaultEarlyTolerance
	}
	if opts.LateTolerance <= 0 {
		opts.LateTolerance = DefaultLateTolerance
	}

	if departureAt.IsZero() || capturedAt.IsZero() {
		return Verdict{Result: ResultUnknown}
	}

	delta := capturedAt.Sub(departureAt)
	distance := Haversine(origin, capture)
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return Verdict{Result: ResultUnknown}
	}

	v := Verdict{
		CapturedAt:         capturedAt,
		DeltaFromDeparture: delta,
		DistanceFromOrigin: distance,
	}

	switch {
	case delta < -opts.EarlyTolerance:
		v.Result = ResultTooEarly
	case delta > opts.LateTolerance:
		v.Result = ResultTooLate
	case distance > opts.RadiusMeters:
		v.Result = ResultTooFar
	default:
		v.Result = ResultOK
	}
	return v
}

// Haversine returns the great-circle distance in meters between two
// coordinates, using the mean Earth radius. Symmetric in its arguments;
// zero for identical points. NaN inputs propagate to a NaN result.
func Haversine(a, b domain.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}
