package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alvariitoSW/produccion/config"
	"github.com/alvariitoSW/produccion/internal/domain"
)

// CheckFills reconciles tracked orders against the exchange for one event.
//
// openIDs is a snapshot of currently-open order IDs from GetOpenOrders. Buys
// below the high-priority price are only status-checked once they disappear
// from the snapshot; rungs near the midpoint get a direct read every tick
// because they fill first and partial fills matter there. Sells are always
// read directly — they are the profit path.
func (e *Engine) CheckFills(ctx context.Context, ev *domain.EventContext, openIDs map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slug := ev.Slug
	if _, ok := e.states[slug]; !ok {
		return
	}

	for _, order := range e.buyOrders[slug] {
		if e.terminal[order.OrderID] {
			continue
		}
		if order.Price < e.cfg.HighPriorityPrice && openIDs[order.OrderID] {
			continue // still open, low priority: skip the extra API call
		}
		e.checkBuyOrder(ctx, ev, order, false)
	}

	for _, order := range e.sellOrders[slug] {
		if e.terminal[order.OrderID] {
			continue
		}
		e.checkSellOrder(ctx, order, false)
	}

	for _, order := range e.stopLossOrders[slug] {
		if e.terminal[order.OrderID] {
			continue
		}
		e.checkSellOrder(ctx, order, true)
	}
}

// checkBuyOrder reads one buy's authoritative status and processes any fill
// delta. Reports whether the read succeeded. Caller holds the mutex.
func (e *Engine) checkBuyOrder(ctx context.Context, ev *domain.EventContext, order *domain.TrackedOrder, accumulateOnly bool) bool {
	od, err := e.exchange.GetOrder(ctx, order.OrderID)
	if err != nil || od == nil {
		e.recordAPIFailure(ctx, order.OrderID, err)
		return false
	}
	e.apiFails[order.OrderID] = 0

	delta := od.SizeMatched - order.ProcessedSize
	if delta > epsilon {
		e.processBuyFill(ctx, ev, order, delta, accumulateOnly)
		order.ProcessedSize = od.SizeMatched
	}

	if od.IsMatched() || od.IsDead() {
		e.terminal[order.OrderID] = true
	}
	return true
}

// checkSellOrder reads one sell's status, crediting PnL per fill delta.
// Position removal, OCO cleanup and reloads happen only on the full fill.
func (e *Engine) checkSellOrder(ctx context.Context, order *domain.TrackedOrder, stopLoss bool) {
	od, err := e.exchange.GetOrder(ctx, order.OrderID)
	if err != nil || od == nil {
		e.recordAPIFailure(ctx, order.OrderID, err)
		return
	}
	e.apiFails[order.OrderID] = 0

	delta := od.SizeMatched - order.ProcessedSize
	if delta > epsilon {
		e.processSellFill(ctx, order, delta, stopLoss)
		order.ProcessedSize = od.SizeMatched
	}

	full := od.IsMatched() || order.ProcessedSize >= order.Size-epsilon
	if full {
		e.terminal[order.OrderID] = true
		e.completeSellFill(ctx, order, stopLoss)
	} else if od.IsDead() {
		e.terminal[order.OrderID] = true
		slog.Warn("sell order died without filling",
			"slug", order.EventSlug, "order_id", order.OrderID,
			"status", od.Status, "matched", od.SizeMatched)
	}
}

// recordAPIFailure counts consecutive failed status reads and alerts once the
// configured threshold is hit. The order keeps being retried.
func (e *Engine) recordAPIFailure(ctx context.Context, orderID string, err error) {
	e.apiFails[orderID]++
	n := e.apiFails[orderID]
	slog.Warn("order status read failed", "order_id", orderID, "consecutive", n, "err", err)
	if n == e.cfg.APIFailAlertCount {
		e.notifier.Send(ctx, fmt.Sprintf(
			"⚠️ %d lecturas fallidas consecutivas para la orden %s", n, orderID))
	}
}

// processBuyFill credits a buy fill delta: position, cycle record, journal,
// and accumulation towards the take-profit lot. With accumulateOnly the lot
// is not emitted here — the caller flushes through the pending queue.
func (e *Engine) processBuyFill(ctx context.Context, ev *domain.EventContext, order *domain.TrackedOrder, delta float64, accumulateOnly bool) {
	slug := order.EventSlug
	now := time.Now().UTC()

	e.positions[slug] = append(e.positions[slug], domain.Position{
		Side:       order.Side,
		EntryPrice: order.Price,
		Size:       delta,
		TokenID:    order.TokenID,
		EventSlug:  slug,
		EntryTime:  now,
	})

	if r := e.results[slug]; r != nil {
		if order.Side == domain.SideYes {
			r.FillsYes = append(r.FillsYes, order.Price)
		} else {
			r.FillsNo = append(r.FillsNo, order.Price)
		}
	}

	slog.Info("buy fill",
		"slug", slug, "side", order.Side,
		"price", order.Price, "size", fmt.Sprintf("%.4f", delta))

	e.journalFill(ctx, domain.FillRecord{
		EventSlug: slug,
		Side:      order.Side,
		Type:      domain.TypeBuy,
		Price:     order.Price,
		Size:      delta,
		At:        now,
	})

	e.accumulate(ctx, order, delta, accumulateOnly)
}

// processSellFill credits a sell fill delta to PnL and the journal.
func (e *Engine) processSellFill(ctx context.Context, order *domain.TrackedOrder, delta float64, stopLoss bool) {
	slug := order.EventSlug
	now := time.Now().UTC()

	pnl := 0.0
	if order.EntryPrice > 0 {
		pnl = (order.Price - order.EntryPrice) * delta
	}
	if r := e.results[slug]; r != nil {
		r.TotalPnL += pnl
	}

	slog.Info("sell fill",
		"slug", slug, "side", order.Side, "price", order.Price,
		"size", fmt.Sprintf("%.4f", delta),
		"pnl", fmt.Sprintf("%+.4f", pnl), "stop_loss", stopLoss)

	e.journalFill(ctx, domain.FillRecord{
		EventSlug:  slug,
		Side:       order.Side,
		Type:       domain.TypeSell,
		Price:      order.Price,
		Size:       delta,
		EntryPrice: order.EntryPrice,
		PnL:        pnl,
		StopLoss:   stopLoss,
		At:         now,
	})
}

// completeSellFill runs the full-fill actions exactly once: position removal,
// the user notification, and the pre-market reload. Stop-loss dumps never
// reload — the level already proved hostile.
func (e *Engine) completeSellFill(ctx context.Context, order *domain.TrackedOrder, stopLoss bool) {
	slug := order.EventSlug

	e.removePositions(slug, order.TokenID, order.Size)

	pnl := 0.0
	if order.EntryPrice > 0 {
		pnl = (order.Price - order.EntryPrice) * order.Size
	}
	e.notifier.SellFill(ctx, order, pnl, stopLoss)

	if stopLoss || e.states[slug] != domain.StateAccumulating {
		return
	}
	if order.EntryPrice <= 0 {
		return // recovered sell, originating rung unknown
	}

	// The tracked entry is a volume-weighted float average; the rebuy must
	// land on a real price tick.
	entry := float64(config.Cents(order.EntryPrice)) / 100

	key := reloadKey{slug: slug, side: order.Side, cents: config.Cents(order.EntryPrice)}
	if e.reloads[key] >= e.cfg.MaxReloadsPerRung {
		slog.Warn("reload cap reached for rung",
			"slug", slug, "side", order.Side, "entry", entry)
		return
	}

	rebuy, err := e.exchange.PlaceLimitOrder(ctx, domain.PlaceOrderRequest{
		TokenID:   order.TokenID,
		Side:      order.Side,
		Type:      domain.TypeBuy,
		Price:     entry,
		Size:      order.Size,
		EventSlug: slug,
	})
	if err != nil || rebuy == nil {
		slog.Warn("rung reload failed",
			"slug", slug, "side", order.Side, "entry", entry, "err", err)
		return
	}
	e.reloads[key]++
	e.buyOrders[slug] = append(e.buyOrders[slug], rebuy)
	slog.Info("rung reloaded",
		"slug", slug, "side", order.Side, "entry", entry,
		"reload", e.reloads[key], "size", order.Size)
}

// removePositions releases exposure for a token after a full sell, oldest
// first. Take-profit lots can aggregate several entries with different
// prices, so matching is by token and quantity rather than by entry.
func (e *Engine) removePositions(slug, tokenID string, size float64) {
	remaining := size
	kept := e.positions[slug][:0]
	for _, p := range e.positions[slug] {
		if remaining <= epsilon || p.TokenID != tokenID {
			kept = append(kept, p)
			continue
		}
		if p.Size <= remaining+epsilon {
			remaining -= p.Size
			continue
		}
		p.Size -= remaining
		remaining = 0
		kept = append(kept, p)
	}
	e.positions[slug] = kept
}
