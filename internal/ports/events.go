package ports

import (
	"context"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// EventFetcher resolves a generated slug into full event metadata.
type EventFetcher interface {
	// FetchEventBySlug returns nil, nil when the event does not exist (yet).
	FetchEventBySlug(ctx context.Context, slug string, start time.Time) (*domain.EventContext, error)
}

// EventSource discovers and tracks hourly events.
type EventSource interface {
	// Scan generates upcoming slugs and returns the newly discovered events.
	Scan(ctx context.Context) []*domain.EventContext

	// Active returns all tracked events.
	Active() []*domain.EventContext

	// UpdatePhases re-derives every event's phase from the clock and returns
	// those that just transitioned PRE_MARKET → LIVE.
	UpdatePhases(now time.Time) []*domain.EventContext

	// Remove drops a completed event from tracking.
	Remove(slug string)
}
