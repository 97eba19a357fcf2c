package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alvariitoSW/produccion/config"
	"github.com/alvariitoSW/produccion/internal/domain"
)

// accKey groups buy fills that share one take-profit order. Two rungs that
// map to the same exit price (e.g. 0.47 and 0.46 → 0.48) merge into one lot.
type accKey struct {
	Slug      string
	Side      domain.Side
	TokenID   string
	ExitCents int
}

// accEntry is the accumulated lot: total shares and total cost, so the
// emitted sell can carry a volume-weighted entry price for PnL.
type accEntry struct {
	Size float64
	Cost float64
}

func (a *accEntry) avgEntry() float64 {
	if a.Size <= epsilon {
		return 0
	}
	return a.Cost / a.Size
}

// minLot is the smallest sell the exchange accepts at an exit price: the
// notional floor rounded up to cents, padded 1% against float drift in the
// fill sizes, never below the configured share floor.
func (e *Engine) minLot(exitPrice float64) float64 {
	byNotional := math.Ceil(e.cfg.MinNotional/exitPrice*100) / 100 * 1.01
	return math.Max(e.cfg.MinShares, byNotional)
}

// accumulate adds a buy fill delta to its take-profit lot and emits the sell
// once the lot clears the exchange minimum. accumulateOnly defers emission —
// used during the live transition so residuals route through the flush.
func (e *Engine) accumulate(ctx context.Context, order *domain.TrackedOrder, delta float64, accumulateOnly bool) {
	exit := e.exitFor(order.Price)
	key := accKey{
		Slug:      order.EventSlug,
		Side:      order.Side,
		TokenID:   order.TokenID,
		ExitCents: config.Cents(exit),
	}

	entry := e.accumulator[key]
	if entry == nil {
		entry = &accEntry{}
		e.accumulator[key] = entry
	}
	entry.Size += delta
	entry.Cost += delta * order.Price

	slog.Debug("fill accumulated",
		"slug", key.Slug, "side", key.Side, "exit", exit,
		"lot", fmt.Sprintf("%.4f", entry.Size),
		"min_lot", fmt.Sprintf("%.4f", e.minLot(exit)))

	if accumulateOnly {
		return
	}
	if entry.Size+epsilon >= e.minLot(exit) {
		e.emitLot(ctx, key, exit)
	}
}

// emitLot places the take-profit sell for an accumulated lot, reconciling
// against the on-chain balance first: shares reserved by other open sells on
// the same token are not available, and settlement can lag the fill.
//
// If only part of the lot is available, only that part is emitted and the
// rest stays accumulated. If placement fails the lot moves to the pending
// queue, which owns all retry policy.
func (e *Engine) emitLot(ctx context.Context, key accKey, exit float64) {
	entry := e.accumulator[key]
	if entry == nil || entry.Size <= epsilon {
		return
	}

	size := entry.Size
	avgEntry := entry.avgEntry()

	balance, err := e.exchange.GetTokenBalance(ctx, key.TokenID)
	if err != nil {
		slog.Warn("token balance read failed before sell, emitting full lot",
			"slug", key.Slug, "side", key.Side, "err", err)
	} else {
		available := balance - e.openSellReservations(key.TokenID)
		if available <= epsilon {
			// Settlement lag: keep the lot, the next fill or the flush retries.
			slog.Info("sell deferred: no settled balance available yet",
				"slug", key.Slug, "side", key.Side,
				"balance", fmt.Sprintf("%.4f", balance),
				"lot", fmt.Sprintf("%.4f", size))
			return
		}
		if available < size-epsilon {
			truncated := truncateShares(available)
			if truncated+epsilon < e.minLot(exit) {
				// The settled part alone does not clear the exchange minimum.
				// Keep the whole lot; more shares settle or the flush drains it.
				slog.Info("sell deferred: settled balance below the minimum lot",
					"slug", key.Slug, "side", key.Side,
					"available", fmt.Sprintf("%.4f", truncated),
					"min_lot", fmt.Sprintf("%.4f", e.minLot(exit)))
				return
			}
			size = truncated
			slog.Info("sell shrunk to available balance",
				"slug", key.Slug, "side", key.Side,
				"lot", fmt.Sprintf("%.4f", entry.Size),
				"emitting", fmt.Sprintf("%.4f", size))
		}
	}

	order, err := e.placeSell(ctx, key.Slug, key.Side, key.TokenID, exit, size, avgEntry)
	if err != nil {
		slog.Warn("take-profit placement failed, queueing",
			"slug", key.Slug, "side", key.Side, "exit", exit, "err", err)
		e.enqueuePending(&PendingSell{
			Slug:       key.Slug,
			Side:       key.Side,
			TokenID:    key.TokenID,
			ExitPrice:  exit,
			EntryPrice: avgEntry,
			Size:       size,
		})
	} else {
		_ = order
	}

	// Emitted (or queued) shares leave the lot; a shrunk emission keeps the
	// unsettled remainder accumulated rather than dropping it.
	entry.Cost -= size * avgEntry
	entry.Size -= size
	if entry.Size <= epsilon {
		delete(e.accumulator, key)
	}
}

// flushAccumulator drains every lot of an event at the live transition.
// Lots below the minimum sellable lot are dust: dropped with a notice, the
// shares resolve at settlement. Everything else goes through the pending
// queue so the balance checks there govern placement.
func (e *Engine) flushAccumulator(ctx context.Context, slug string) {
	for key, entry := range e.accumulator {
		if key.Slug != slug || entry.Size <= epsilon {
			continue
		}
		exit := float64(key.ExitCents) / 100

		if entry.Size+epsilon < e.minLot(exit) {
			slog.Info("dust lot dropped at transition",
				"slug", slug, "side", key.Side,
				"size", fmt.Sprintf("%.4f", entry.Size), "exit", exit)
			e.notifier.Send(ctx, fmt.Sprintf(
				"🧹 Resto de %.4f shares %s en %s descartado (por debajo del mínimo)",
				entry.Size, key.Side, slug))
			delete(e.accumulator, key)
			continue
		}

		e.enqueuePending(&PendingSell{
			Slug:       slug,
			Side:       key.Side,
			TokenID:    key.TokenID,
			ExitPrice:  exit,
			EntryPrice: entry.avgEntry(),
			Size:       entry.Size,
		})
		delete(e.accumulator, key)
	}
}

// placeSell submits a take-profit sell and registers it for tracking.
// Caller holds the mutex.
func (e *Engine) placeSell(ctx context.Context, slug string, side domain.Side, tokenID string, exit, size, entryPrice float64) (*domain.TrackedOrder, error) {
	order, err := e.exchange.PlaceLimitOrder(ctx, domain.PlaceOrderRequest{
		TokenID:   tokenID,
		Side:      side,
		Type:      domain.TypeSell,
		Price:     exit,
		Size:      size,
		EventSlug: slug,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy.placeSell: %w", err)
	}
	order.EntryPrice = entryPrice
	e.sellOrders[slug] = append(e.sellOrders[slug], order)

	slog.Info("take-profit placed",
		"slug", slug, "side", side,
		"exit", exit, "size", fmt.Sprintf("%.4f", size),
		"avg_entry", fmt.Sprintf("%.4f", entryPrice))
	e.notifier.SellPlaced(ctx, side, entryPrice, exit, size, slug)

	return order, nil
}
