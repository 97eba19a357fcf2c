package domain

import (
	"strings"
	"time"
)

// Side is the outcome token being traded.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// OrderType distinguishes entries from exits.
type OrderType string

const (
	TypeBuy  OrderType = "BUY"
	TypeSell OrderType = "SELL"
)

// StrategyState is the per-event strategy lifecycle.
type StrategyState string

const (
	StateAccumulating StrategyState = "ACCUMULATING" // pre-market, ladder active
	StateExiting      StrategyState = "EXITING"      // live, only exits remain
	StateCompleted    StrategyState = "COMPLETED"    // no open exits left
)

// TrackedOrder is an order we placed and are tracking against the CLOB.
//
// ProcessedSize is the filled quantity last observed from the exchange. It
// only ever grows, and fill deltas are derived from it — Size is never
// mutated, so duplicate status reads cannot double-count a fill.
type TrackedOrder struct {
	OrderID   string
	TokenID   string
	Side      Side
	Type      OrderType
	Price     float64
	Size      float64 // original size in shares
	EventSlug string
	PlacedAt  time.Time

	// EntryPrice links a sell back to its originating buy (PnL + OCO).
	// Zero on buys.
	EntryPrice float64

	ProcessedSize float64
}

// Remaining returns the unfilled share count as last observed.
func (o *TrackedOrder) Remaining() float64 {
	r := o.Size - o.ProcessedSize
	if r < 0 {
		return 0
	}
	return r
}

// Position is an open exposure: a filled buy waiting for its exit.
type Position struct {
	Side       Side
	EntryPrice float64
	Size       float64
	TokenID    string
	EventSlug  string
	EntryTime  time.Time
}

// CycleResult aggregates everything produced by one event's trading cycle.
type CycleResult struct {
	EventSlug string
	FillsYes  []float64 // entry prices of YES buy fills
	FillsNo   []float64
	TotalPnL  float64
	StartTime time.Time
	EndTime   time.Time
}

// TotalFills returns the number of buy fills across both sides.
func (r *CycleResult) TotalFills() int {
	return len(r.FillsYes) + len(r.FillsNo)
}

// Order statuses recognised from the CLOB API.
const (
	StatusLive      = "LIVE"
	StatusMatched   = "MATCHED"
	StatusCancelled = "CANCELLED"
	StatusInvalid   = "INVALID"
	StatusExpired   = "EXPIRED"
	StatusRejected  = "REJECTED"
)

// OrderData is the authoritative order record returned by the exchange.
type OrderData struct {
	ID           string
	AssetID      string
	Side         string // BUY | SELL
	Price        float64
	OriginalSize float64
	SizeMatched  float64
	Status       string
}

// IsCancelled normalises the two spellings the API uses.
func (o *OrderData) IsCancelled() bool {
	s := strings.ToUpper(o.Status)
	return s == "CANCELED" || s == StatusCancelled
}

// IsDead reports a terminal status that can never fill further.
func (o *OrderData) IsDead() bool {
	switch strings.ToUpper(o.Status) {
	case StatusInvalid, StatusExpired, StatusRejected, "CANCELED", StatusCancelled:
		return true
	}
	return false
}

// IsMatched reports the fully-matched terminal status.
func (o *OrderData) IsMatched() bool {
	return strings.ToUpper(o.Status) == StatusMatched
}

// BookEntry is one price level of an order book.
type BookEntry struct {
	Price float64
	Size  float64
}

// OrderBook is the book snapshot for one outcome token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry
	Asks    []BookEntry
}

// BestBid returns the highest bid at or above floor. The CLOB does not
// guarantee bid ordering, so we scan for the max; floor filters spam bids.
func (b *OrderBook) BestBid(floor float64) float64 {
	best := 0.0
	for _, e := range b.Bids {
		if e.Price >= floor && e.Price > best {
			best = e.Price
		}
	}
	return best
}

// PlaceOrderRequest is sent to the exchange client.
type PlaceOrderRequest struct {
	TokenID   string
	Side      Side
	Type      OrderType
	Price     float64
	Size      float64
	EventSlug string
}

// FillRecord is a journal row for an executed fill (buy, sell, or stop-loss).
type FillRecord struct {
	EventSlug  string
	Side       Side
	Type       OrderType
	Price      float64
	Size       float64
	EntryPrice float64
	PnL        float64
	StopLoss   bool
	At         time.Time
}
