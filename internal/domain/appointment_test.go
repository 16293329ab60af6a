package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seojinpark/ontime/backend/internal/domain"
)

func TestParseMeetingAt(t *testing.T) {
	at, ok := domain.ParseMeetingAt("2025-03-10", "18:00", time.UTC)

	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), at)
}

func TestParseMeetingAt_Invalid(t *testing.T) {
	cases := []struct {
		name string
		date string
		time string
	}{
		{"empty date", "", "18:00"},
		{"empty time", "2025-03-10", ""},
		{"garbage date", "next tuesday", "18:00"},
		{"garbage time", "2025-03-10", "evening"},
		{"month out of range", "2025-13-10", "18:00"},
		{"hour out of range", "2025-03-10", "25:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := domain.ParseMeetingAt(tc.date, tc.time, time.UTC)
			assert.False(t, ok)
		})
	}
}

func TestDraft_MissingFields(t *testing.T) {
	empty := domain.Draft{}
	assert.Equal(t,
		[]string{"origin_place", "dest_place", "meeting_date", "meeting_time", "route"},
		empty.MissingFields())

	complete := domain.Draft{
		OriginPlace: &domain.Place{Name: "Home"},
		DestPlace:   &domain.Place{Name: "Office"},
		MeetingDate: "2025-03-10",
		MeetingTime: "18:00",
		Route:       &domain.RouteSummary{TotalTimeMinutes: 45},
	}
	assert.Empty(t, complete.MissingFields())

	// Whitespace-only strings do not count as set.
	complete.MeetingTime = "   "
	assert.Equal(t, []string{"meeting_time"}, complete.MissingFields())
}
