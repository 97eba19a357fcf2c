package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// TransitionToLive moves an event from ACCUMULATING to EXITING when its hour
// starts: cancel the remaining ladder in one batch, audit each rung for fills
// that raced the cancel, then flush the accumulator so every bought share has
// an exit on the book (or in the pending queue).
//
// Returns the number of buy orders cancelled.
func (e *Engine) TransitionToLive(ctx context.Context, ev *domain.EventContext) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	slug := ev.Slug
	if e.states[slug] != domain.StateAccumulating {
		return 0
	}

	var openBuys []string
	for _, o := range e.buyOrders[slug] {
		if !e.terminal[o.OrderID] {
			openBuys = append(openBuys, o.OrderID)
		}
	}

	cancelled := 0
	if len(openBuys) > 0 {
		n, err := e.exchange.CancelOrdersBatch(ctx, openBuys)
		if err != nil {
			slog.Error("batch cancel failed at live transition",
				"slug", slug, "orders", len(openBuys), "err", err)
		}
		cancelled = n
	}

	// Cancel/fill race audit: a rung can fill in the window between the last
	// poll and the batch cancel. Read each buy's authoritative status and
	// credit any missed delta. accumulateOnly routes the resulting exits
	// through the flush below instead of placing sells mid-audit. A failed
	// read leaves the order non-terminal — marking it here would orphan a
	// raced fill; the regular fill check picks it up next tick.
	for _, o := range e.buyOrders[slug] {
		if e.terminal[o.OrderID] {
			continue
		}
		if e.checkBuyOrder(ctx, ev, o, true) {
			e.terminal[o.OrderID] = true
		}
	}

	e.flushAccumulator(ctx, slug)

	e.states[slug] = domain.StateExiting
	slog.Info("event live, strategy exiting",
		"slug", slug, "cancelled", cancelled, "pending", len(e.pending))
	e.notifier.PhaseTransition(ctx, ev, cancelled)

	return cancelled
}

// CheckCompletion closes out an EXITING event once nothing remains open for
// it: no pending sells, and every take-profit and stop-loss resolved.
//
// A sell can vanish from the exchange without filling (operator cancel,
// expiry). Its shares are still held, so a replacement is queued at the same
// exit, sized from the actual on-chain balance.
//
// Returns true when the event reaches COMPLETED.
func (e *Engine) CheckCompletion(ctx context.Context, ev *domain.EventContext, openIDs map[string]bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	slug := ev.Slug
	if e.states[slug] != domain.StateExiting {
		return false
	}
	if e.pendingFor(slug) {
		return false
	}

	allResolved := true
	for listIdx, list := range [][]*domain.TrackedOrder{e.sellOrders[slug], e.stopLossOrders[slug]} {
		stopLoss := listIdx == 1
		for _, o := range list {
			if e.terminal[o.OrderID] {
				continue
			}
			if openIDs[o.OrderID] {
				allResolved = false
				continue // still resting on the book
			}
			if !e.resolveVanishedSell(ctx, o, stopLoss) {
				allResolved = false
			}
		}
	}
	if !allResolved || e.pendingFor(slug) {
		return false
	}

	e.states[slug] = domain.StateCompleted
	result := e.results[slug]
	if result != nil {
		result.EndTime = time.Now().UTC()
	}

	slog.Info("cycle completed",
		"slug", slug,
		"fills", result.TotalFills(),
		"pnl", fmt.Sprintf("%+.4f", result.TotalPnL))

	e.notifier.CycleReport(ctx, result)
	if e.journal != nil && result != nil {
		if err := e.journal.RecordCycle(ctx, result); err != nil {
			slog.Warn("cycle journal write failed", "slug", slug, "err", err)
		}
	}
	return true
}

// resolveVanishedSell settles a sell that left the open-orders snapshot.
// Returns true when the order reached a terminal, accounted-for state.
func (e *Engine) resolveVanishedSell(ctx context.Context, o *domain.TrackedOrder, stopLoss bool) bool {
	od, err := e.exchange.GetOrder(ctx, o.OrderID)
	if err != nil {
		e.recordAPIFailure(ctx, o.OrderID, err)
		return false
	}
	e.apiFails[o.OrderID] = 0

	if od != nil {
		delta := od.SizeMatched - o.ProcessedSize
		if delta > epsilon {
			e.processSellFill(ctx, o, delta, stopLoss)
			o.ProcessedSize = od.SizeMatched
		}
		if od.IsMatched() || o.ProcessedSize >= o.Size-epsilon {
			e.terminal[o.OrderID] = true
			e.completeSellFill(ctx, o, stopLoss)
			return true
		}
		if !od.IsDead() {
			return false // race: gone from the snapshot but still live
		}
	}

	// Dead (or unknown) without filling: the shares are still ours. Replace
	// the exit, sized by what the chain says we actually hold.
	e.terminal[o.OrderID] = true
	if o.ProcessedSize > epsilon {
		// Partially filled before dying; the remainder is re-queued below.
		slog.Warn("sell died partially filled",
			"slug", o.EventSlug, "order_id", o.OrderID,
			"matched", fmt.Sprintf("%.4f", o.ProcessedSize))
	}

	balance, err := e.exchange.GetTokenBalance(ctx, o.TokenID)
	if err != nil {
		slog.Warn("vanished sell: token balance read failed, re-queueing original size",
			"slug", o.EventSlug, "order_id", o.OrderID, "err", err)
		balance = o.Remaining()
	}
	available := balance - e.openSellReservations(o.TokenID)
	if available <= epsilon {
		slog.Info("vanished sell: no balance left to replace",
			"slug", o.EventSlug, "order_id", o.OrderID)
		return true
	}
	size := truncateShares(available)
	if size > o.Remaining() {
		size = o.Remaining()
	}

	slog.Warn("sell vanished without filling, replacing",
		"slug", o.EventSlug, "order_id", o.OrderID,
		"exit", o.Price, "size", fmt.Sprintf("%.4f", size))
	e.enqueuePending(&PendingSell{
		Slug:       o.EventSlug,
		Side:       o.Side,
		TokenID:    o.TokenID,
		ExitPrice:  o.Price,
		EntryPrice: o.EntryPrice,
		Size:       size,
	})
	return true
}
