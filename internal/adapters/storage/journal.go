package storage

// journal.go — trade journal en SQLite.
//
// Es observabilidad pura: el bot nunca lee de aquí. El estado durable se
// recupera siempre del exchange, así que perder el archivo no afecta al
// trading — solo al histórico.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

const schema = `
-- Un fill ejecutado (compra, venta o stop-loss)
CREATE TABLE IF NOT EXISTS fills (
    id          TEXT PRIMARY KEY,
    event_slug  TEXT     NOT NULL,
    side        TEXT     NOT NULL,
    order_type  TEXT     NOT NULL,
    price       REAL     NOT NULL,
    size        REAL     NOT NULL,
    entry_price REAL     NOT NULL DEFAULT 0,
    pnl         REAL     NOT NULL DEFAULT 0,
    stop_loss   INTEGER  NOT NULL DEFAULT 0,
    filled_at   DATETIME NOT NULL
);

-- Resumen de un ciclo completado (un evento horario)
CREATE TABLE IF NOT EXISTS cycles (
    id         TEXT PRIMARY KEY,
    event_slug TEXT     NOT NULL,
    fills_yes  INTEGER  NOT NULL DEFAULT 0,
    fills_no   INTEGER  NOT NULL DEFAULT 0,
    entries    TEXT     NOT NULL DEFAULT '',
    total_pnl  REAL     NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    ended_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_slug  ON fills(event_slug);
CREATE INDEX IF NOT EXISTS idx_fills_at    ON fills(filled_at DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_slug ON cycles(event_slug);
`

// Retención: los ciclos horarios pierden interés rápido.
const retention = 30 * 24 * time.Hour

// Journal implementa ports.TradeJournal usando SQLite (pure Go, sin CGo).
type Journal struct {
	db *sql.DB
}

// NewJournal abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia datos antiguos.
func NewJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewJournal: apply schema: %w", err)
	}

	j := &Journal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// RecordFill persiste un fill ejecutado.
func (j *Journal) RecordFill(ctx context.Context, fill domain.FillRecord) error {
	stopLoss := 0
	if fill.StopLoss {
		stopLoss = 1
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO fills (id, event_slug, side, order_type, price, size,
		                   entry_price, pnl, stop_loss, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		fill.EventSlug,
		string(fill.Side),
		string(fill.Type),
		fill.Price,
		fill.Size,
		fill.EntryPrice,
		fill.PnL,
		stopLoss,
		fill.At.UTC(),
	); err != nil {
		return fmt.Errorf("storage.RecordFill: %w", err)
	}
	return nil
}

// RecordCycle persiste el resumen de un ciclo completado.
func (j *Journal) RecordCycle(ctx context.Context, result *domain.CycleResult) error {
	if result == nil {
		return nil
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO cycles (id, event_slug, fills_yes, fills_no, entries,
		                    total_pnl, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		result.EventSlug,
		len(result.FillsYes),
		len(result.FillsNo),
		formatEntries(result),
		result.TotalPnL,
		result.StartTime.UTC(),
		result.EndTime.UTC(),
	); err != nil {
		return fmt.Errorf("storage.RecordCycle: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (j *Journal) Close() error {
	return j.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (j *Journal) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retention)
	j.db.ExecContext(ctx, `DELETE FROM fills WHERE filled_at < ?`, cutoff)
	j.db.ExecContext(ctx, `DELETE FROM cycles WHERE ended_at < ?`, cutoff)
}

// formatEntries serializa los precios de entrada como "Y:0.47,0.46|N:0.45".
func formatEntries(r *domain.CycleResult) string {
	var sb strings.Builder
	sb.WriteString("Y:")
	for i, f := range r.FillsYes {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%.2f", f)
	}
	sb.WriteString("|N:")
	for i, f := range r.FillsNo {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%.2f", f)
	}
	return sb.String()
}

var _ ports.TradeJournal = (*Journal)(nil)
