package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvariitoSW/produccion/internal/domain"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func (j *Journal) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, j.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestJournal_RecordFill(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.RecordFill(ctx, domain.FillRecord{
		EventSlug: "bitcoin-up-or-down-august-24-3pm-et",
		Side:      domain.SideYes,
		Type:      domain.TypeBuy,
		Price:     0.48,
		Size:      30,
		At:        time.Now().UTC(),
	})
	require.NoError(t, err)

	err = j.RecordFill(ctx, domain.FillRecord{
		EventSlug:  "bitcoin-up-or-down-august-24-3pm-et",
		Side:       domain.SideYes,
		Type:       domain.TypeSell,
		Price:      0.01,
		Size:       30,
		EntryPrice: 0.48,
		PnL:        -14.1,
		StopLoss:   true,
		At:         time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, j.count(t, "fills"))

	var side, orderType string
	var pnl float64
	var stopLoss int
	require.NoError(t, j.db.QueryRow(
		`SELECT side, order_type, pnl, stop_loss FROM fills WHERE stop_loss = 1`,
	).Scan(&side, &orderType, &pnl, &stopLoss))
	assert.Equal(t, "YES", side)
	assert.Equal(t, "SELL", orderType)
	assert.InDelta(t, -14.1, pnl, 1e-9)
	assert.Equal(t, 1, stopLoss)
}

func TestJournal_RecordCycle(t *testing.T) {
	j := newTestJournal(t)

	start := time.Now().UTC().Add(-time.Hour)
	err := j.RecordCycle(context.Background(), &domain.CycleResult{
		EventSlug: "bitcoin-up-or-down-august-24-3pm-et",
		FillsYes:  []float64{0.47, 0.46},
		FillsNo:   []float64{0.45},
		TotalPnL:  0.42,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	require.NoError(t, err)

	var fillsYes, fillsNo int
	var entries string
	require.NoError(t, j.db.QueryRow(
		`SELECT fills_yes, fills_no, entries FROM cycles`,
	).Scan(&fillsYes, &fillsNo, &entries))
	assert.Equal(t, 2, fillsYes)
	assert.Equal(t, 1, fillsNo)
	assert.Equal(t, "Y:0.47,0.46|N:0.45", entries)

	// Un resultado nil se ignora sin error.
	assert.NoError(t, j.RecordCycle(context.Background(), nil))
	assert.Equal(t, 1, j.count(t, "cycles"))
}

func TestJournal_PruneOldOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewJournal(path)
	require.NoError(t, err)

	// Un fill reciente y otro fuera de la ventana de retención.
	require.NoError(t, j.RecordFill(context.Background(), domain.FillRecord{
		EventSlug: "recent", Side: domain.SideYes, Type: domain.TypeBuy,
		Price: 0.47, Size: 30, At: time.Now().UTC(),
	}))
	require.NoError(t, j.RecordFill(context.Background(), domain.FillRecord{
		EventSlug: "ancient", Side: domain.SideNo, Type: domain.TypeBuy,
		Price: 0.44, Size: 30, At: time.Now().UTC().Add(-40 * 24 * time.Hour),
	}))
	require.NoError(t, j.Close())

	// Reabrir dispara la limpieza.
	j, err = NewJournal(path)
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, 1, j.count(t, "fills"))

	var slug string
	require.NoError(t, j.db.QueryRow(`SELECT event_slug FROM fills`).Scan(&slug))
	assert.Equal(t, "recent", slug)
}

func TestFormatEntries(t *testing.T) {
	assert.Equal(t, "Y:|N:", formatEntries(&domain.CycleResult{}))
	assert.Equal(t, "Y:0.48|N:0.45,0.44", formatEntries(&domain.CycleResult{
		FillsYes: []float64{0.48},
		FillsNo:  []float64{0.45, 0.44},
	}))
}
