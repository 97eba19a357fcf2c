package ports

import (
	"context"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// TradeJournal persists fills and cycle reports for later inspection.
//
// Write-only observability: the engine never reads it back — durable state is
// always recovered from the exchange, not from disk.
type TradeJournal interface {
	RecordFill(ctx context.Context, fill domain.FillRecord) error
	RecordCycle(ctx context.Context, result *domain.CycleResult) error
	Close() error
}
