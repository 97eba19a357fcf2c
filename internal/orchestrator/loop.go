package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
	"github.com/alvariitoSW/produccion/internal/strategy"
)

// bidFloor filtra bids basura del libro antes de evaluar el stop-loss: un bid
// suelto a 0.02 no es el mercado, es spam.
const bidFloor = 0.10

// Config controla el ritmo del loop.
type Config struct {
	PollInterval      time.Duration
	ScanInterval      time.Duration
	HeartbeatInterval time.Duration
}

// Orchestrator ejecuta el ciclo principal del bot en una sola goroutine.
// Todo el trading pasa por aquí: no hay timers por evento ni callbacks.
type Orchestrator struct {
	cfg      Config
	exchange ports.ExchangeClient
	events   ports.EventSource
	engine   *strategy.Engine
	notifier ports.Notifier

	lastScan      time.Time
	lastHeartbeat time.Time
}

// New crea el orquestador con todas las dependencias inyectadas.
func New(cfg Config, exchange ports.ExchangeClient, events ports.EventSource, engine *strategy.Engine, notifier ports.Notifier) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		exchange: exchange,
		events:   events,
		engine:   engine,
		notifier: notifier,
	}
}

// Run ejecuta el loop hasta que el contexto se cancele. Al salir cancela
// todas las órdenes abiertas (best-effort): mejor plano que con órdenes
// huérfanas en el libro.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("orchestrator starting",
		"poll", o.cfg.PollInterval,
		"scan", o.cfg.ScanInterval,
		"heartbeat", o.cfg.HeartbeatInterval)

	balance, err := o.exchange.GetBalance(ctx)
	if err != nil {
		slog.Warn("startup balance fetch failed", "err", err)
	}
	o.notifier.Startup(ctx, balance)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick es un ciclo completo: scan → fases → bids → fills → stop-loss →
// completion → pending → heartbeat. Cada paso es tolerante a fallos: un
// error se loguea y el tick continúa.
func (o *Orchestrator) tick(ctx context.Context) {
	now := time.Now().UTC()

	if now.Sub(o.lastScan) >= o.cfg.ScanInterval || o.lastScan.IsZero() {
		o.lastScan = now
		for _, ev := range o.events.Scan(ctx) {
			o.notifier.EventDiscovered(ctx, ev)
			if _, err := o.engine.InitializeEvent(ctx, ev); err != nil {
				slog.Error("event initialization failed", "slug", ev.Slug, "err", err)
			}
		}
	}

	for _, ev := range o.events.UpdatePhases(now) {
		o.engine.TransitionToLive(ctx, ev)
	}

	active := o.events.Active()
	if len(active) == 0 {
		return
	}

	openIDs := o.openOrderIDs(ctx)

	for _, ev := range active {
		if _, ok := o.engine.State(ev.Slug); !ok {
			// La inicialización falló al descubrir el evento (p. ej. la
			// lectura de recuperación): se reintenta mientras siga PRE_MARKET.
			if ev.Phase == domain.PhasePreMarket {
				if _, err := o.engine.InitializeEvent(ctx, ev); err != nil {
					slog.Warn("event initialization retry failed", "slug", ev.Slug, "err", err)
				}
			} else {
				slog.Error("event never initialized and no longer PRE_MARKET, dropping",
					"slug", ev.Slug, "phase", ev.Phase)
				o.events.Remove(ev.Slug)
			}
			continue
		}

		o.refreshBids(ctx, ev)
		o.engine.CheckFills(ctx, ev, openIDs)
		o.engine.CheckStopLoss(ctx, ev)

		if ev.Phase != domain.PhasePreMarket {
			if o.engine.CheckCompletion(ctx, ev, openIDs) {
				o.events.Remove(ev.Slug)
			}
		}
	}

	o.engine.ProcessPendingSells(ctx)

	if now.Sub(o.lastHeartbeat) >= o.cfg.HeartbeatInterval {
		o.lastHeartbeat = now
		o.heartbeat(now)
	}
}

// openOrderIDs toma un snapshot de las órdenes abiertas. nil si la lectura
// falla — los consumidores tratan nil como "snapshot no disponible" y caen
// al chequeo directo por orden.
func (o *Orchestrator) openOrderIDs(ctx context.Context) map[string]bool {
	open, err := o.exchange.GetOpenOrders(ctx)
	if err != nil {
		slog.Warn("open orders snapshot failed", "err", err)
		return nil
	}
	ids := make(map[string]bool, len(open))
	for _, od := range open {
		ids[od.ID] = true
	}
	return ids
}

// refreshBids actualiza el mejor bid de cada outcome en el evento, para el
// monitor de stop-loss. Best-effort: sin libro, el stop-loss no evalúa.
func (o *Orchestrator) refreshBids(ctx context.Context, ev *domain.EventContext) {
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		book, err := o.exchange.GetOrderBook(ctx, ev.TokenID(side))
		if err != nil {
			slog.Debug("book fetch failed", "slug", ev.Slug, "side", side, "err", err)
			continue
		}
		best := book.BestBid(bidFloor)
		if side == domain.SideYes {
			ev.YesBid = best
		} else {
			ev.NoBid = best
		}
	}
}

// heartbeat loguea el estado global del bot.
func (o *Orchestrator) heartbeat(now time.Time) {
	active := o.events.Active()

	nextLive := time.Duration(-1)
	for _, ev := range active {
		if ev.Phase == domain.PhasePreMarket {
			until := ev.TimeUntilStart(now)
			if nextLive < 0 || until < nextLive {
				nextLive = until
			}
		}
	}

	attrs := []any{
		"active_events", len(active),
		"pending_orders", o.engine.PendingCount(),
	}
	if nextLive >= 0 {
		attrs = append(attrs, "next_live_in", nextLive.Round(time.Second))
	}
	slog.Info("heartbeat", attrs...)
}

// shutdown cancela todas las órdenes abiertas con un contexto propio: el del
// loop ya está cancelado.
func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	n, err := o.exchange.CancelAll(ctx)
	if err != nil {
		slog.Error("shutdown cancel-all failed", "err", err)
		return
	}
	slog.Info("shutdown complete", "orders_cancelled", n)
}
