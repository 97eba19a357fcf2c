package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlugFor(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		want  string
	}{
		{
			name:  "afternoon EDT",
			start: time.Date(2026, 8, 24, 19, 0, 0, 0, time.UTC), // 15:00 ET
			want:  "bitcoin-up-or-down-august-24-3pm-et",
		},
		{
			name:  "noon",
			start: time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC), // 12:00 ET
			want:  "bitcoin-up-or-down-august-24-12pm-et",
		},
		{
			name:  "midnight",
			start: time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC), // 00:00 ET
			want:  "bitcoin-up-or-down-august-24-12am-et",
		},
		{
			name:  "day rolls back across the UTC boundary",
			start: time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC), // 23:00 ET del 24
			want:  "bitcoin-up-or-down-august-24-11pm-et",
		},
		{
			name:  "winter switches to EST",
			start: time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC), // 12:00 ET
			want:  "bitcoin-up-or-down-january-15-12pm-et",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SlugFor("bitcoin", tc.start))
		})
	}
}

func TestHourStart(t *testing.T) {
	in := time.Date(2026, 8, 24, 14, 37, 12, 500, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC), HourStart(in))

	// Ya alineado: no cambia.
	aligned := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, aligned, HourStart(aligned))
}

func TestUpcomingHours(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)

	hours := UpcomingHours(now, 3*time.Hour)

	// Incluye la hora en curso y llega hasta now+lookAhead.
	assert.Equal(t, []time.Time{
		time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC),
	}, hours)
}
