package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// PendingSell is a take-profit that could not be placed yet, usually because
// the bought shares have not settled on-chain. The queue retries every tick.
type PendingSell struct {
	Slug       string
	Side       domain.Side
	TokenID    string
	ExitPrice  float64
	EntryPrice float64
	Size       float64

	// Consecutive attempts in the current failure mode. A mode change (e.g.
	// the size gets truncated to the available balance) resets the counter.
	Attempts int
}

// enqueuePending adds a sell to the retry queue. Caller holds the mutex.
func (e *Engine) enqueuePending(p *PendingSell) {
	e.pending = append(e.pending, p)
	slog.Info("sell queued for retry",
		"slug", p.Slug, "side", p.Side,
		"exit", p.ExitPrice, "size", fmt.Sprintf("%.4f", p.Size))
}

// pendingFor reports whether the queue holds sells for an event.
func (e *Engine) pendingFor(slug string) bool {
	for _, p := range e.pending {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

// ProcessPendingSells retries every queued sell once. Per-sell outcomes:
//
//   - size below the minimum sellable lot: dust, dropped with a notice
//   - token balance zero: settlement has not landed; retried forever, with
//     an alert once the attempt cap is passed
//   - balance present but fully reserved by an open sell at the same exit:
//     the exit already exists, dropped silently
//   - partial balance available: size truncated down to it (6 decimals, the
//     CLOB's precision) and the attempt counter reset
//   - placement keeps failing with balance available: dropped after the
//     generic cap with an alert — something other than settlement is wrong
func (e *Engine) ProcessPendingSells(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return
	}

	kept := e.pending[:0]
	for _, p := range e.pending {
		if e.retryPendingSell(ctx, p) {
			kept = append(kept, p)
		}
	}
	e.pending = kept
}

// retryPendingSell attempts one placement. Returns true to keep the sell
// queued. Caller holds the mutex.
func (e *Engine) retryPendingSell(ctx context.Context, p *PendingSell) bool {
	if p.Size+epsilon < e.minLot(p.ExitPrice) {
		slog.Info("pending sell dropped as dust",
			"slug", p.Slug, "side", p.Side, "size", fmt.Sprintf("%.4f", p.Size))
		e.notifier.Send(ctx, fmt.Sprintf(
			"🧹 Venta pendiente de %.4f shares %s en %s descartada (por debajo del mínimo)",
			p.Size, p.Side, p.Slug))
		return false
	}

	balance, err := e.exchange.GetTokenBalance(ctx, p.TokenID)
	if err != nil {
		p.Attempts++
		slog.Warn("pending sell: balance read failed",
			"slug", p.Slug, "side", p.Side, "attempts", p.Attempts, "err", err)
		return true
	}

	if balance <= epsilon {
		// Settlement lag. Never dropped: the shares were bought, the exit
		// must eventually be placed.
		p.Attempts++
		if p.Attempts == e.cfg.PendingSettlementCap {
			e.notifier.Send(ctx, fmt.Sprintf(
				"⏳ Venta de %.4f shares %s en %s lleva %d intentos sin balance (liquidación lenta)",
				p.Size, p.Side, p.Slug, p.Attempts))
		}
		if p.Attempts%10 == 0 {
			slog.Warn("pending sell still waiting for settlement",
				"slug", p.Slug, "side", p.Side, "attempts", p.Attempts)
		}
		return true
	}

	available := balance - e.openSellReservations(p.TokenID)

	if available <= epsilon {
		if e.hasOpenSellAt(p.TokenID, p.ExitPrice) {
			// An open sell at this exit already covers the shares — this
			// entry is a duplicate from a retried placement.
			slog.Info("pending sell dropped: exit already covered by an open order",
				"slug", p.Slug, "side", p.Side, "exit", p.ExitPrice)
			return false
		}
		p.Attempts++
		return e.dropAfterGenericCap(ctx, p, "balance reservado sin venta equivalente")
	}

	if available < p.Size-epsilon {
		truncated := truncateShares(available)
		if truncated+epsilon < e.minLot(p.ExitPrice) {
			// Not enough settled yet for a placeable sell; wait for more.
			p.Attempts++
			return true
		}
		slog.Info("pending sell truncated to available balance",
			"slug", p.Slug, "side", p.Side,
			"size", fmt.Sprintf("%.4f", p.Size),
			"available", fmt.Sprintf("%.4f", truncated))
		p.Size = truncated
		p.Attempts = 0
	}

	if _, err := e.placeSell(ctx, p.Slug, p.Side, p.TokenID, p.ExitPrice, p.Size, p.EntryPrice); err != nil {
		p.Attempts++
		slog.Warn("pending sell placement failed",
			"slug", p.Slug, "side", p.Side, "attempts", p.Attempts, "err", err)
		return e.dropAfterGenericCap(ctx, p, "el exchange rechaza la orden")
	}
	return false
}

// dropAfterGenericCap keeps retrying until the generic cap, then alerts and
// drops. Returns true while the sell should stay queued.
func (e *Engine) dropAfterGenericCap(ctx context.Context, p *PendingSell, reason string) bool {
	if p.Attempts < e.cfg.PendingGenericCap {
		return true
	}
	slog.Error("pending sell dropped after repeated failures",
		"slug", p.Slug, "side", p.Side, "size", fmt.Sprintf("%.4f", p.Size),
		"attempts", p.Attempts, "reason", reason)
	e.notifier.Send(ctx, fmt.Sprintf(
		"🚨 Venta de %.4f shares %s en %s descartada tras %d intentos: %s",
		p.Size, p.Side, p.Slug, p.Attempts, reason))
	return false
}

// truncateShares rounds a share quantity down to the CLOB's six decimal
// places. Rounding up would sell more than we hold.
func truncateShares(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Truncate(6).Float64()
	return f
}
