package strategy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvariitoSW/produccion/internal/domain"
)

func TestTransitionToLive_CancelsLadderAndExits(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	cancelled := eng.TransitionToLive(context.Background(), ev)
	assert.Equal(t, 4, cancelled)

	state, _ := eng.State(ev.Slug)
	assert.Equal(t, domain.StateExiting, state)

	// Segunda llamada: ya no está ACCUMULATING, no hace nada.
	assert.Zero(t, eng.TransitionToLive(context.Background(), ev))
}

func TestTransitionToLive_AuditsCancelFillRace(t *testing.T) {
	eng, ex, _ := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	// El rung 0.48 YES se llenó entre el último poll y el batch cancel:
	// nadie lo ha observado todavía.
	ex.fill("order-2", 10)
	ex.tokenBal["tok-yes"] = 10

	eng.TransitionToLive(context.Background(), ev)

	// El fill perdido se acredita y su exit viaja por la cola pendiente.
	require.Len(t, eng.Positions(ev.Slug), 1)
	assert.InDelta(t, 10.0, eng.Positions(ev.Slug)[0].Size, 1e-9)
	assert.Equal(t, 1, eng.PendingCount())

	eng.ProcessPendingSells(context.Background())
	sells := ex.placedOfType(domain.TypeSell)
	require.Len(t, sells, 1)
	assert.InDelta(t, 10.0, sells[0].Size, 1e-9)
	assert.Equal(t, 0.49, sells[0].Price)
}

func TestTransitionToLive_AuditSurvivesTransientReadError(t *testing.T) {
	eng, ex, _ := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	// El rung 0.48 YES se llena durante la transición, pero la lectura de
	// estado falla justo en la auditoría.
	ex.fill("order-2", 30)
	ex.tokenBal["tok-yes"] = 30
	ex.getOrderErr["order-2"] = fmt.Errorf("transient")

	eng.TransitionToLive(context.Background(), ev)
	assert.Empty(t, eng.Positions(ev.Slug))

	// La API se recupera: el chequeo normal del siguiente tick acredita el
	// fill y coloca su exit. Nada se perdió por el fallo transitorio.
	delete(ex.getOrderErr, "order-2")
	eng.CheckFills(context.Background(), ev, nil)

	require.Len(t, eng.Positions(ev.Slug), 1)
	assert.InDelta(t, 30.0, eng.Positions(ev.Slug)[0].Size, 1e-9)

	sells := ex.placedOfType(domain.TypeSell)
	require.Len(t, sells, 1)
	assert.Equal(t, 0.49, sells[0].Price)
	assert.InDelta(t, 30.0, sells[0].Size, 1e-9)
}

func TestTransitionToLive_DropsDustResidual(t *testing.T) {
	eng, ex, nt := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	// Resto diminuto: 1 share × 0.49 queda por debajo del notional mínimo.
	ex.fill("order-2", 1)
	ex.tokenBal["tok-yes"] = 1

	eng.TransitionToLive(context.Background(), ev)

	assert.Zero(t, eng.PendingCount())
	assert.Equal(t, 1, nt.count()) // aviso del descarte
	assert.Empty(t, ex.placedOfType(domain.TypeSell))
}

func TestTransitionToLive_DropsResidualBelowMinShares(t *testing.T) {
	eng, ex, nt := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	// 3 shares × 0.49 = 1.47 supera el notional mínimo, pero 3 < MinShares:
	// el exchange rechazaría la venta, así que es polvo igualmente.
	ex.fill("order-2", 3)
	ex.tokenBal["tok-yes"] = 3

	eng.TransitionToLive(context.Background(), ev)
	eng.ProcessPendingSells(context.Background())

	assert.Zero(t, eng.PendingCount())
	assert.Equal(t, 1, nt.count())
	assert.Empty(t, ex.placedOfType(domain.TypeSell))
}

func TestCheckCompletion_AllSellsFilled(t *testing.T) {
	eng, ex, nt := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	ex.fill("order-2", 30)
	ex.tokenBal["tok-yes"] = 30
	eng.CheckFills(context.Background(), ev, nil)
	tpID := ex.lastOrderID()

	eng.TransitionToLive(context.Background(), ev)
	ev.Phase = domain.PhaseLive

	// Con el take-profit aún vivo no hay cierre.
	assert.False(t, eng.CheckCompletion(context.Background(), ev, map[string]bool{tpID: true}))

	ex.fill(tpID, 30)
	assert.True(t, eng.CheckCompletion(context.Background(), ev, map[string]bool{}))

	state, _ := eng.State(ev.Slug)
	assert.Equal(t, domain.StateCompleted, state)

	require.Len(t, nt.reports, 1)
	r := nt.reports[0]
	assert.Equal(t, ev.Slug, r.EventSlug)
	assert.InDelta(t, (0.49-0.48)*30, r.TotalPnL, 1e-9)
	assert.False(t, r.EndTime.IsZero())
}

func TestCheckCompletion_BlockedByPendingSells(t *testing.T) {
	eng, ex, _ := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	// Fill que llega en la transición: su exit queda en la cola pendiente.
	ex.fill("order-2", 10)
	ex.tokenBal["tok-yes"] = 0 // sin liquidar → la cola no puede colocar
	eng.TransitionToLive(context.Background(), ev)
	ev.Phase = domain.PhaseLive

	assert.False(t, eng.CheckCompletion(context.Background(), ev, map[string]bool{}))
}

func TestCheckCompletion_VanishedSellIsRequeued(t *testing.T) {
	eng, ex, _ := newTestEngine(t)
	ev := testEvent()
	_, err := eng.InitializeEvent(context.Background(), ev)
	require.NoError(t, err)

	ex.fill("order-2", 30)
	ex.tokenBal["tok-yes"] = 30
	eng.CheckFills(context.Background(), ev, nil)
	tpID := ex.lastOrderID()

	eng.TransitionToLive(context.Background(), ev)
	ev.Phase = domain.PhaseLive

	// El take-profit desaparece del exchange sin ejecutarse (cancel externo).
	ex.mu.Lock()
	delete(ex.orders, tpID)
	ex.mu.Unlock()

	// No completa: las shares siguen en cartera y el exit se re-encola.
	assert.False(t, eng.CheckCompletion(context.Background(), ev, map[string]bool{}))
	assert.Equal(t, 1, eng.PendingCount())

	eng.ProcessPendingSells(context.Background())
	sells := ex.placedOfType(domain.TypeSell)
	require.Len(t, sells, 2)
	assert.Equal(t, 0.49, sells[1].Price)
	assert.InDelta(t, 30.0, sells[1].Size, 1e-9)
}
