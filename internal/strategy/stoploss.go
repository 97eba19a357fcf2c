package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// dumpPrice is the limit price of a stop-loss dump. Low enough to cross any
// real bid immediately, i.e. a market sell expressed as a limit order.
const dumpPrice = 0.01

type stopKey struct {
	slug    string
	tokenID string
}

// CheckStopLoss watches the best bid of each outcome and dumps protected
// positions when the market collapses through the stop price.
//
// Only entries configured as protected (the top rung) carry a stop: lower
// rungs already price in a large adverse move. The trigger is one-way per
// token — a dumped level never re-arms and never reloads.
func (e *Engine) CheckStopLoss(ctx context.Context, ev *domain.EventContext) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slug := ev.Slug
	state, ok := e.states[slug]
	if !ok || state == domain.StateCompleted {
		return
	}
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		bid := ev.BestBid(side)
		if bid <= 0 || bid > e.cfg.StopLossPrice {
			continue // no book data yet, or market is healthy
		}

		tokenID := ev.TokenID(side)
		key := stopKey{slug: slug, tokenID: tokenID}
		if e.stopTriggered[key] {
			continue
		}

		var protected, cost float64
		for _, p := range e.positions[slug] {
			if p.TokenID == tokenID && e.needsStopLoss(p.EntryPrice) {
				protected += p.Size
				cost += p.Size * p.EntryPrice
			}
		}
		if protected <= epsilon {
			continue
		}

		slog.Warn("stop-loss triggered",
			"slug", slug, "side", side,
			"best_bid", bid, "protected", fmt.Sprintf("%.4f", protected))

		dumpSize, ok := e.releaseTakeProfits(ctx, tokenID, protected)
		if !ok {
			// A cancel is unresolved; retry the whole trigger next tick.
			continue
		}
		e.stopTriggered[key] = true

		if dumpSize <= epsilon {
			slog.Info("stop-loss: nothing left to dump, take-profits filled first",
				"slug", slug, "side", side)
			continue
		}

		avgEntry := cost / protected
		order, err := e.placeDump(ctx, slug, side, tokenID, dumpSize, avgEntry)
		if err != nil {
			slog.Error("stop-loss dump failed to place",
				"slug", slug, "side", side, "err", err)
			e.notifier.Send(ctx, fmt.Sprintf(
				"🚨 STOP-LOSS en %s (%s): no se pudo colocar la venta de emergencia: %v",
				slug, side, err))
			continue
		}

		e.notifier.Send(ctx, fmt.Sprintf(
			"🛑 STOP-LOSS en %s (%s): bid %.2f ≤ %.2f, vendiendo %.4f shares a %.2f (orden %s)",
			slug, side, bid, e.cfg.StopLossPrice, dumpSize, dumpPrice, order.OrderID))
	}
}

// releaseTakeProfits cancels the open take-profits guarding protected shares
// on a token, so those shares are free to dump. Exits belonging to
// unprotected rungs stay working: their entry already priced in a move this
// size, and cancelling them would strand the shares without an exit.
// Returns the dumpable size and whether every cancel resolved.
//
// Cancel-versus-fill race: if a cancel fails, the order's authoritative
// status decides. MATCHED means the take-profit beat us — those shares are
// sold at a better price than the dump, so they leave the dump size. A dead
// or unknown order is as good as cancelled.
func (e *Engine) releaseTakeProfits(ctx context.Context, tokenID string, protected float64) (float64, bool) {
	dumpSize := protected

	for slug := range e.states {
		for _, sell := range e.sellOrders[slug] {
			if sell.TokenID != tokenID || e.terminal[sell.OrderID] {
				continue
			}
			if !e.needsStopLoss(sell.EntryPrice) {
				continue
			}

			if err := e.exchange.CancelOrder(ctx, sell.OrderID); err == nil {
				e.terminal[sell.OrderID] = true
				continue
			}

			od, err := e.exchange.GetOrder(ctx, sell.OrderID)
			if err != nil {
				slog.Warn("stop-loss: cancel unresolved, will retry",
					"order_id", sell.OrderID, "err", err)
				return 0, false
			}
			switch {
			case od == nil || od.IsDead():
				e.terminal[sell.OrderID] = true
			case od.IsMatched():
				// Filled before the cancel landed. Credit it and shrink the dump.
				delta := od.SizeMatched - sell.ProcessedSize
				if delta > epsilon {
					e.processSellFill(ctx, sell, delta, false)
					sell.ProcessedSize = od.SizeMatched
				}
				e.terminal[sell.OrderID] = true
				e.completeSellFill(ctx, sell, false)
				dumpSize -= od.SizeMatched
			default:
				slog.Warn("stop-loss: order still live after failed cancel, will retry",
					"order_id", sell.OrderID, "status", od.Status)
				return 0, false
			}
		}
	}

	if dumpSize < 0 {
		dumpSize = 0
	}
	return dumpSize, true
}

// placeDump submits the emergency sell and tracks it separately from the
// take-profits so its fill never triggers a reload.
func (e *Engine) placeDump(ctx context.Context, slug string, side domain.Side, tokenID string, size, avgEntry float64) (*domain.TrackedOrder, error) {
	order, err := e.exchange.PlaceLimitOrder(ctx, domain.PlaceOrderRequest{
		TokenID:   tokenID,
		Side:      side,
		Type:      domain.TypeSell,
		Price:     dumpPrice,
		Size:      truncateShares(size),
		EventSlug: slug,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy.placeDump: %w", err)
	}
	order.EntryPrice = avgEntry
	e.stopLossOrders[slug] = append(e.stopLossOrders[slug], order)
	return order, nil
}
