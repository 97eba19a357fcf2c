package domain

import "time"

// EventDuration es la duración de cada evento horario (1 hora).
const EventDuration = time.Hour

// Phase represents the lifecycle phase of an hourly event.
type Phase string

const (
	PhasePreMarket Phase = "PRE_MARKET"
	PhaseLive      Phase = "LIVE"
	PhaseEnded     Phase = "ENDED"
)

// EventContext is a discovered hourly up/down event on Polymarket.
type EventContext struct {
	Slug        string
	ConditionID string
	YesTokenID  string
	NoTokenID   string
	StartTime   time.Time
	Phase       Phase

	// Best bids per outcome, refreshed by the orchestrator from the order
	// book. Zero means "not yet fetched" — the stop-loss monitor skips them.
	YesBid float64
	NoBid  float64
}

// PhaseAt derives the phase purely from wall clock vs. the start timestamp.
// No timers, no callbacks — this is re-evaluated on every tick.
func PhaseAt(start, now time.Time) Phase {
	switch {
	case now.Before(start):
		return PhasePreMarket
	case now.Before(start.Add(EventDuration)):
		return PhaseLive
	default:
		return PhaseEnded
	}
}

// UpdatePhase recomputes the phase from the clock and returns the new value.
func (e *EventContext) UpdatePhase(now time.Time) Phase {
	e.Phase = PhaseAt(e.StartTime, now)
	return e.Phase
}

// TimeUntilStart returns how long until the event goes LIVE (negative if started).
func (e *EventContext) TimeUntilStart(now time.Time) time.Duration {
	return e.StartTime.Sub(now)
}

// TokenID returns the outcome token for the given side.
func (e *EventContext) TokenID(side Side) string {
	if side == SideYes {
		return e.YesTokenID
	}
	return e.NoTokenID
}

// SideFor maps an asset ID back to its outcome side.
func (e *EventContext) SideFor(tokenID string) (Side, bool) {
	switch tokenID {
	case e.YesTokenID:
		return SideYes, true
	case e.NoTokenID:
		return SideNo, true
	}
	return "", false
}

// BestBid returns the last-refreshed best bid for the given side.
func (e *EventContext) BestBid(side Side) float64 {
	if side == SideYes {
		return e.YesBid
	}
	return e.NoBid
}

// HasToken reports whether the asset belongs to this event.
func (e *EventContext) HasToken(tokenID string) bool {
	_, ok := e.SideFor(tokenID)
	return ok
}
