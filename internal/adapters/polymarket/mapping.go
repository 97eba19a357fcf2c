package polymarket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// mapClobOrder convierte el registro raw del CLOB a domain.OrderData.
func mapClobOrder(o clobOrder) domain.OrderData {
	return domain.OrderData{
		ID:           o.ID,
		AssetID:      o.AssetID,
		Side:         strings.ToUpper(o.Side),
		Price:        parseFloat(o.Price),
		OriginalSize: parseFloat(o.OriginalSize),
		SizeMatched:  parseFloat(o.SizeMatched),
		Status:       strings.ToUpper(o.Status),
	}
}

// mapOrderBook convierte la respuesta de GET /book a domain.OrderBook.
// No reordena los niveles: el consumidor no asume orden.
func mapOrderBook(r orderBookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: r.AssetID,
		Bids:    mapBookEntries(r.Bids),
		Asks:    mapBookEntries(r.Asks),
	}
}

func mapBookEntries(raw []bookEntryRaw) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price := parseFloat(r.Price)
		size := parseFloat(r.Size)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}
	return entries
}

// mapGammaEvent extrae el EventContext del primer mercado de un evento Gamma.
// clobTokenIds llega como string JSON: `"[\"123...\", \"456...\"]"`, en orden
// [YES, NO] para los mercados up/down.
func mapGammaEvent(ev gammaEvent, slug string, start time.Time) (*domain.EventContext, error) {
	if len(ev.Markets) == 0 {
		return nil, fmt.Errorf("gamma event %q has no markets", slug)
	}
	m := ev.Markets[0]

	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return nil, fmt.Errorf("parse clobTokenIds for %q: %w", slug, err)
	}
	if len(tokenIDs) < 2 {
		return nil, fmt.Errorf("gamma event %q: expected 2 token ids, got %d", slug, len(tokenIDs))
	}

	ctx := &domain.EventContext{
		Slug:        slug,
		ConditionID: m.ConditionID,
		YesTokenID:  tokenIDs[0],
		NoTokenID:   tokenIDs[1],
		StartTime:   start,
	}
	ctx.UpdatePhase(time.Now().UTC())
	return ctx, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
