package ports

import (
	"context"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// Notifier delivers user-facing messages. Every method is best-effort: a
// notifier failure must never affect trading.
type Notifier interface {
	// Send delivers a raw text message.
	Send(ctx context.Context, text string) error

	Startup(ctx context.Context, balance float64)
	EventDiscovered(ctx context.Context, ev *domain.EventContext)
	LadderPlaced(ctx context.Context, slug string, orders int, balance float64)
	SellPlaced(ctx context.Context, side domain.Side, entryPrice, exitPrice, size float64, slug string)
	SellFill(ctx context.Context, order *domain.TrackedOrder, pnl float64, stopLoss bool)
	PhaseTransition(ctx context.Context, ev *domain.EventContext, cancelled int)
	CycleReport(ctx context.Context, result *domain.CycleResult)
}
