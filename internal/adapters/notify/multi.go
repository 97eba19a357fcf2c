package notify

import (
	"context"
	"errors"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

// Multi reparte cada notificación a varios notificadores (consola + Telegram).
type Multi struct {
	targets []ports.Notifier
}

// NewMulti crea un fan-out sobre los notificadores dados.
func NewMulti(targets ...ports.Notifier) *Multi {
	return &Multi{targets: targets}
}

func (m *Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Startup(ctx context.Context, balance float64) {
	for _, t := range m.targets {
		t.Startup(ctx, balance)
	}
}

func (m *Multi) EventDiscovered(ctx context.Context, ev *domain.EventContext) {
	for _, t := range m.targets {
		t.EventDiscovered(ctx, ev)
	}
}

func (m *Multi) LadderPlaced(ctx context.Context, slug string, orders int, balance float64) {
	for _, t := range m.targets {
		t.LadderPlaced(ctx, slug, orders, balance)
	}
}

func (m *Multi) SellPlaced(ctx context.Context, side domain.Side, entryPrice, exitPrice, size float64, slug string) {
	for _, t := range m.targets {
		t.SellPlaced(ctx, side, entryPrice, exitPrice, size, slug)
	}
}

func (m *Multi) SellFill(ctx context.Context, order *domain.TrackedOrder, pnl float64, stopLoss bool) {
	for _, t := range m.targets {
		t.SellFill(ctx, order, pnl, stopLoss)
	}
}

func (m *Multi) PhaseTransition(ctx context.Context, ev *domain.EventContext, cancelled int) {
	for _, t := range m.targets {
		t.PhaseTransition(ctx, ev, cancelled)
	}
}

func (m *Multi) CycleReport(ctx context.Context, result *domain.CycleResult) {
	for _, t := range m.targets {
		t.CycleReport(ctx, result)
	}
}

var _ ports.Notifier = (*Multi)(nil)
