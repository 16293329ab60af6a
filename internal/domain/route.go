package domain

// SegmentKind identifies the mode of one leg of a transit route.
type SegmentKind string

const (
	SegmentWalk   SegmentKind = "walk"
	SegmentBus    SegmentKind = "bus"
	SegmentSubway SegmentKind = "subway"
	SegmentOther  SegmentKind = "other"
)

// Segment is one leg of a transit route: a walk, a bus ride, or a subway ride.
type Segment struct {
	Kind            SegmentKind `json:"kind"`
	DurationMinutes int         `json:"duration_minutes"`
	DistanceMeters  int         `json:"distance_meters"`
	From            string      `json:"from,omitempty"`
	To              string      `json:"to,omitempty"`
	Line            string      `json:"line,omitempty"` // bus route number or subway line name
}

// RouteSummary is the route selected for an appointment, supplied wholesale by
// the external transit-routing backend. The departure calculation reads only
// TotalTimeMinutes; the remaining fields and the ordered segment list are
// carried through for display.
type RouteSummary struct {
	TotalTimeMinutes     int       `json:"total_time_minutes"`
	TotalFare            int       `json:"total_fare"`
	TransferCount        int       `json:"transfer_count"`
	TotalWalkTimeMinutes int       `json:"total_walk_time_minutes"`
	Segments             []Segment `json:"segments,omitempty"`
}
