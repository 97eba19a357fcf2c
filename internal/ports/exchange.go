package ports

import (
	"context"

	"github.com/alvariitoSW/produccion/internal/domain"
)

// ExchangeClient places, cancels, and monitors real orders on the CLOB.
type ExchangeClient interface {
	// PlaceLimitOrder signs and submits a GTC limit order. SELL placements
	// retry a few times with short back-off inside the client — sells are on
	// the critical profit path.
	PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.TrackedOrder, error)

	// CancelOrder cancels a single order by its CLOB order ID.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelOrdersBatch cancels the given orders in one API call and returns
	// how many the exchange reports as cancelled.
	CancelOrdersBatch(ctx context.Context, orderIDs []string) (int, error)

	// CancelAll cancels every open order for this wallet.
	CancelAll(ctx context.Context) (int, error)

	// GetOpenOrders returns all currently open orders from the CLOB.
	GetOpenOrders(ctx context.Context) ([]domain.OrderData, error)

	// GetOrder fetches the authoritative record for one order. A nil result
	// with nil error means the exchange does not know the order (yet).
	GetOrder(ctx context.Context, orderID string) (*domain.OrderData, error)

	// GetBalance returns the available USDC.e collateral balance.
	GetBalance(ctx context.Context) (float64, error)

	// GetTokenBalance returns the on-chain ERC-1155 balance (in shares) for a
	// conditional token. Ground truth for settlement — if > 0, the buy filled
	// regardless of what the order status says.
	GetTokenBalance(ctx context.Context, tokenID string) (float64, error)

	// GetOrderBook returns the current book for a token. Bids are not assumed
	// sorted.
	GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
