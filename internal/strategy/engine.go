package strategy

// engine.go — Mean-reversion ladder strategy for hourly up/down events.
//
// Lifecycle per event:
//   PRE_MARKET: place buy ladder on both outcomes (ACCUMULATING)
//   buy fill → accumulate → take-profit sell at the level's exit price
//   take-profit fill in pre-market → reload the rung
//   LIVE: batch-cancel buys, audit the cancel/fill race, flush accumulator (EXITING)
//   no open exits left → COMPLETED

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alvariitoSW/produccion/config"
	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

// epsilon absorbs float drift when comparing share quantities.
const epsilon = 1e-6

// Config parameterises the engine. Zero values are not defaulted here —
// config.Load owns defaults.
type Config struct {
	LadderLevels []float64
	// Entry price in cents → exit price in dollars.
	ExitPrices map[int]float64
	OrderSize  float64

	StopLossPrice   float64
	StopLossEntries map[int]bool // entry cents protected by a stop-loss

	MinNotional float64
	MinShares   float64

	HighPriorityPrice    float64
	APIFailAlertCount    int
	MaxReloadsPerRung    int
	PendingSettlementCap int
	PendingGenericCap    int
}

// ConfigFrom builds the engine config from the application config.
func ConfigFrom(c *config.Config) Config {
	s := c.Strategy
	stops := make(map[int]bool, len(s.StopLossEntries))
	for _, p := range s.StopLossEntries {
		stops[config.Cents(p)] = true
	}
	return Config{
		LadderLevels:         s.LadderLevels,
		ExitPrices:           c.ExitPricesCents(),
		OrderSize:            s.OrderSize,
		StopLossPrice:        s.StopLossPrice,
		StopLossEntries:      stops,
		MinNotional:          s.MinNotional,
		MinShares:            s.MinShares,
		HighPriorityPrice:    s.HighPriorityPrice,
		APIFailAlertCount:    s.APIFailAlertCount,
		MaxReloadsPerRung:    s.MaxReloadsPerRung,
		PendingSettlementCap: s.PendingSettlementCap,
		PendingGenericCap:    s.PendingGenericCap,
	}
}

// Engine drives the per-event state machine. All per-event collections are
// owned exclusively by the engine; the mutex serialises every entry point so
// a concurrent orchestrator cannot break processed_size monotonicity.
type Engine struct {
	exchange ports.ExchangeClient
	notifier ports.Notifier
	journal  ports.TradeJournal // optional, may be nil
	cfg      Config

	// Highest exit in the table — conservative fallback for unmapped entries.
	defaultExit float64

	mu sync.Mutex

	states    map[string]domain.StrategyState
	positions map[string][]domain.Position
	results   map[string]*domain.CycleResult

	buyOrders      map[string][]*domain.TrackedOrder
	sellOrders     map[string][]*domain.TrackedOrder
	stopLossOrders map[string][]*domain.TrackedOrder

	// Order IDs whose fate is terminally known (filled, cancelled, expired,
	// rejected). Never re-processed.
	terminal map[string]bool

	// Consecutive failed status reads per order. Reset on success.
	apiFails map[string]int

	// Reloads per (slug, side, entry cents) — bounds pre-market order flow.
	reloads map[reloadKey]int

	// Tokens whose stop-loss already fired. One-way: never re-arms.
	stopTriggered map[stopKey]bool

	accumulator map[accKey]*accEntry
	pending     []*PendingSell
}

type reloadKey struct {
	slug  string
	side  domain.Side
	cents int
}

// New creates a strategy engine. journal may be nil.
func New(exchange ports.ExchangeClient, notifier ports.Notifier, journal ports.TradeJournal, cfg Config) *Engine {
	defaultExit := 0.0
	for _, exit := range cfg.ExitPrices {
		if exit > defaultExit {
			defaultExit = exit
		}
	}

	return &Engine{
		exchange:       exchange,
		notifier:       notifier,
		journal:        journal,
		cfg:            cfg,
		defaultExit:    defaultExit,
		states:         make(map[string]domain.StrategyState),
		positions:      make(map[string][]domain.Position),
		results:        make(map[string]*domain.CycleResult),
		buyOrders:      make(map[string][]*domain.TrackedOrder),
		sellOrders:     make(map[string][]*domain.TrackedOrder),
		stopLossOrders: make(map[string][]*domain.TrackedOrder),
		terminal:       make(map[string]bool),
		apiFails:       make(map[string]int),
		reloads:        make(map[reloadKey]int),
		stopTriggered:  make(map[stopKey]bool),
		accumulator:    make(map[accKey]*accEntry),
	}
}

// exitFor returns the exit price for an entry, falling back to the most
// conservative (highest) exit on a table miss. A miss means the ladder and
// the exit table disagree — always worth a warning.
func (e *Engine) exitFor(entryPrice float64) float64 {
	if exit, ok := e.cfg.ExitPrices[config.Cents(entryPrice)]; ok {
		return exit
	}
	slog.Warn("entry price missing from exit table, using conservative default",
		"entry", fmt.Sprintf("%.2f", entryPrice),
		"default_exit", fmt.Sprintf("%.2f", e.defaultExit),
	)
	return e.defaultExit
}

// needsStopLoss reports whether an entry level is stop-loss protected.
func (e *Engine) needsStopLoss(entryPrice float64) bool {
	return e.cfg.StopLossEntries[config.Cents(entryPrice)]
}

// InitializeEvent sets up the strategy for a new PRE_MARKET event.
//
// On first call it performs state recovery: any open order on the exchange
// whose asset belongs to this event is adopted instead of placing a fresh
// ladder. This makes restarts idempotent — the exchange is the source of
// truth, nothing is persisted locally.
//
// Returns the number of orders placed (or adopted).
func (e *Engine) InitializeEvent(ctx context.Context, ev *domain.EventContext) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slug := ev.Slug
	if _, ok := e.states[slug]; ok {
		return 0, nil // already initialized
	}

	if ev.Phase != domain.PhasePreMarket {
		slog.Error("rejected initialization: event is not PRE_MARKET",
			"slug", slug, "phase", ev.Phase)
		return 0, fmt.Errorf("strategy.InitializeEvent: %s is %s, only PRE_MARKET allowed", slug, ev.Phase)
	}

	// Recovery read first: if it fails we must not commit state nor place a
	// ladder — a ladder could already exist from before a restart, and the
	// caller retries initialization on the next tick.
	open, err := e.exchange.GetOpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("strategy.InitializeEvent: recovery check: %w", err)
	}

	e.states[slug] = domain.StateAccumulating
	e.positions[slug] = nil
	e.results[slug] = &domain.CycleResult{EventSlug: slug, StartTime: time.Now().UTC()}
	e.buyOrders[slug] = nil
	e.sellOrders[slug] = nil
	e.stopLossOrders[slug] = nil

	if recovered := e.recoverExistingOrders(ctx, ev, open); recovered > 0 {
		return recovered, nil
	}

	placed := 0
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		tokenID := ev.TokenID(side)
		for _, price := range e.cfg.LadderLevels {
			order, err := e.exchange.PlaceLimitOrder(ctx, domain.PlaceOrderRequest{
				TokenID:   tokenID,
				Side:      side,
				Type:      domain.TypeBuy,
				Price:     price,
				Size:      e.cfg.OrderSize,
				EventSlug: slug,
			})
			if err != nil || order == nil {
				// Best-effort: a missing rung cannot deadlock the strategy.
				slog.Warn("ladder rung failed to place",
					"slug", slug, "side", side, "price", price, "err", err)
				continue
			}
			e.buyOrders[slug] = append(e.buyOrders[slug], order)
			placed++
		}
	}

	slog.Info("ladder placed", "slug", slug, "orders", placed)

	balance, err := e.exchange.GetBalance(ctx)
	if err != nil {
		slog.Warn("balance fetch failed after ladder placement", "err", err)
	}
	e.notifier.LadderPlaced(ctx, slug, placed, balance)

	return placed, nil
}

// recoverExistingOrders adopts open orders already on the exchange for this
// event. Returns how many were adopted; 0 means a fresh ladder is needed.
func (e *Engine) recoverExistingOrders(ctx context.Context, ev *domain.EventContext, open []domain.OrderData) int {
	recovered := 0
	for i := range open {
		od := open[i]
		side, ok := ev.SideFor(od.AssetID)
		if !ok {
			continue
		}

		orderType := domain.TypeBuy
		if od.Side == string(domain.TypeSell) {
			orderType = domain.TypeSell
		}

		tracked := &domain.TrackedOrder{
			OrderID:   od.ID,
			TokenID:   od.AssetID,
			Side:      side,
			Type:      orderType,
			Price:     od.Price,
			Size:      od.OriginalSize,
			EventSlug: ev.Slug,
			PlacedAt:  time.Now().UTC(),
			// Fills observed before the restart were handled by the previous
			// process; adopting the matched size prevents re-crediting them.
			ProcessedSize: od.SizeMatched,
		}

		if orderType == domain.TypeBuy {
			e.buyOrders[ev.Slug] = append(e.buyOrders[ev.Slug], tracked)
		} else {
			e.sellOrders[ev.Slug] = append(e.sellOrders[ev.Slug], tracked)
		}
		recovered++
	}

	if recovered > 0 {
		slog.Info("state recovery: adopted existing orders",
			"slug", ev.Slug, "count", recovered)
		e.notifier.Send(ctx, fmt.Sprintf(
			"♻️ Bot reiniciado: recuperadas %d órdenes para %s", recovered, ev.Slug))
	}
	return recovered
}

// State returns the strategy state for an event.
func (e *Engine) State(slug string) (domain.StrategyState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[slug]
	return s, ok
}

// Result returns the cycle result for an event, or nil.
func (e *Engine) Result(slug string) *domain.CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results[slug]
}

// Positions returns a copy of the open positions for an event.
func (e *Engine) Positions(slug string) []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, len(e.positions[slug]))
	copy(out, e.positions[slug])
	return out
}

// PendingCount returns the number of orders not yet terminally known across
// all events, plus queued pending sells. Used by the heartbeat.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(e.pending)
	for slug := range e.states {
		for _, lists := range [][]*domain.TrackedOrder{
			e.buyOrders[slug], e.sellOrders[slug], e.stopLossOrders[slug],
		} {
			for _, o := range lists {
				if !e.terminal[o.OrderID] {
					total++
				}
			}
		}
	}
	return total
}

// openSellReservations sums the remaining size of non-terminal sells (take-
// profit and stop-loss) for a token. Shares locked in open sells are not
// available for new placements.
func (e *Engine) openSellReservations(tokenID string) float64 {
	var reserved float64
	for slug := range e.states {
		for _, lists := range [][]*domain.TrackedOrder{e.sellOrders[slug], e.stopLossOrders[slug]} {
			for _, o := range lists {
				if o.TokenID == tokenID && !e.terminal[o.OrderID] {
					reserved += o.Remaining()
				}
			}
		}
	}
	return reserved
}

// hasOpenSellAt reports an open sell for the token at the given exit price.
func (e *Engine) hasOpenSellAt(tokenID string, exitPrice float64) bool {
	for slug := range e.states {
		for _, o := range e.sellOrders[slug] {
			if o.TokenID == tokenID && !e.terminal[o.OrderID] &&
				config.Cents(o.Price) == config.Cents(exitPrice) {
				return true
			}
		}
	}
	return false
}

// journalFill writes a fill record; journal errors are never fatal.
func (e *Engine) journalFill(ctx context.Context, fill domain.FillRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordFill(ctx, fill); err != nil {
		slog.Warn("journal write failed", "slug", fill.EventSlug, "err", err)
	}
}
