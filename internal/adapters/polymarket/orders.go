package polymarket

// orders.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.ExchangeClient using AuthClient for L1/L2 auth. All orders
// are placed as GTC (good-till-cancelled) limit orders; a "market" sell is a
// limit order priced to cross the book.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alvariitoSW/produccion/internal/domain"
)

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Los sells están en el camino crítico del beneficio: reintento corto y
	// lineal antes de devolver el error al caller (que tiene su propia cola).
	sellRetries   = 3
	sellRetryWait = 100 * time.Millisecond
)

var (
	balanceOfERC20   abi.ABI
	balanceOfERC1155 abi.ABI
)

func init() {
	var err error
	balanceOfERC20, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
	balanceOfERC1155, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf erc1155 abi: " + err.Error())
	}
}

// TradingClient implements ports.ExchangeClient.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client

	// neg-risk nunca cambia para un token; cache para ahorrar un GET por orden.
	negRiskMu    sync.Mutex
	negRiskCache map[string]bool
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain
// balance checks (USDC.e collateral and ERC-1155 outcome shares).
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{
		auth:         auth,
		rpcClient:    rpc,
		negRiskCache: make(map[string]bool),
	}, nil
}

// PlaceLimitOrder signs and submits a GTC limit order to the CLOB.
func (tc *TradingClient) PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.TrackedOrder, error) {
	if req.Type == domain.TypeSell {
		return tc.placeWithRetry(ctx, req)
	}
	return tc.placeOnce(ctx, req)
}

// placeWithRetry reintenta un sell unas pocas veces con espera corta.
func (tc *TradingClient) placeWithRetry(ctx context.Context, req domain.PlaceOrderRequest) (*domain.TrackedOrder, error) {
	var lastErr error
	for attempt := 1; attempt <= sellRetries; attempt++ {
		order, err := tc.placeOnce(ctx, req)
		if err == nil {
			return order, nil
		}
		lastErr = err
		slog.Warn("sell placement attempt failed",
			"attempt", attempt, "token", req.TokenID, "price", req.Price, "err", err)
		if attempt < sellRetries {
			select {
			case <-time.After(sellRetryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("polymarket.PlaceLimitOrder: sell failed after %d attempts: %w", sellRetries, lastErr)
}

func (tc *TradingClient) placeOnce(ctx context.Context, req domain.PlaceOrderRequest) (*domain.TrackedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("place order: creds: %w", err)
	}

	negRisk, err := tc.isNegRisk(ctx, req.TokenID)
	if err != nil {
		slog.Warn("neg-risk check failed, assuming standard exchange", "err", err)
	}

	sell := req.Type == domain.TypeSell
	signed, err := tc.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, sell, negRisk)
	if err != nil {
		return nil, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Type),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return nil, fmt.Errorf("place order: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return nil, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	return &domain.TrackedOrder{
		OrderID:   resp.OrderID,
		TokenID:   req.TokenID,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Size:      req.Size,
		EventSlug: req.EventSlug,
		PlacedAt:  time.Now().UTC(),
	}, nil
}

// CancelOrder cancels a single order by its CLOB order ID.
func (tc *TradingClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("cancel order: creds: %w", err)
	}
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/order/"+orderID, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelOrdersBatch cancels the given orders in one API call.
func (tc *TradingClient) CancelOrdersBatch(ctx context.Context, orderIDs []string) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return 0, fmt.Errorf("cancel batch: creds: %w", err)
	}

	var resp clobCancelResponse
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/orders", orderIDs, &resp); err != nil {
		return 0, fmt.Errorf("cancel batch: %w", err)
	}
	for id, reason := range resp.NotCanceled {
		slog.Warn("order not cancelled in batch", "order_id", id, "reason", reason)
	}
	return len(resp.Canceled), nil
}

// CancelAll cancels every open order for this wallet.
func (tc *TradingClient) CancelAll(ctx context.Context) (int, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return 0, fmt.Errorf("cancel all: creds: %w", err)
	}

	var resp clobCancelResponse
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/cancel-all", nil, &resp); err != nil {
		return 0, fmt.Errorf("cancel all: %w", err)
	}
	return len(resp.Canceled), nil
}

// GetOpenOrders returns all currently open orders from the CLOB.
func (tc *TradingClient) GetOpenOrders(ctx context.Context) ([]domain.OrderData, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("get orders: creds: %w", err)
	}

	var resp clobOrdersResponse
	if err := tc.auth.doL2(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	orders := make([]domain.OrderData, 0, len(resp.Data))
	for _, o := range resp.Data {
		orders = append(orders, mapClobOrder(o))
	}
	return orders, nil
}

// GetOrder fetches the authoritative record for one order. A 404 means the
// CLOB does not know the order: returned as (nil, nil) so the caller can
// treat it as "vanished" rather than as an API failure.
func (tc *TradingClient) GetOrder(ctx context.Context, orderID string) (*domain.OrderData, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("get order: creds: %w", err)
	}

	var raw clobOrder
	if err := tc.auth.doL2(ctx, http.MethodGet, "/data/order/"+orderID, nil, &raw); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	od := mapClobOrder(raw)
	return &od, nil
}

// GetOrderBook returns the current book for a token.
func (tc *TradingClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", tc.auth.clobBase, tokenID)

	var resp orderBookResponse
	if err := tc.auth.get(ctx, tc.auth.booksLimiter, url, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("get book: %w", err)
	}
	if resp.AssetID == "" {
		resp.AssetID = tokenID
	}
	return mapOrderBook(resp), nil
}

// GetBalance returns the on-chain USDC.e balance of the funder address.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfERC20.Pack("balanceOf", tc.auth.funder)
	if err != nil {
		return 0, fmt.Errorf("get balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("get balance: rpc call: %w", err)
	}

	vals, err := balanceOfERC20.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("get balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}

// GetTokenBalance returns the on-chain ERC-1155 balance for a conditional
// token, in shares (not micro-units) — e.g. 13.51 means 13.51 shares.
func (tc *TradingClient) GetTokenBalance(ctx context.Context, tokenID string) (float64, error) {
	tid := new(big.Int)
	if _, ok := tid.SetString(tokenID, 10); !ok {
		tidBytes, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
		if err != nil {
			return 0, fmt.Errorf("token balance: invalid token ID: %s", tokenID)
		}
		tid.SetBytes(tidBytes)
	}

	callData, err := balanceOfERC1155.Pack("balanceOf", tc.auth.funder, tid)
	if err != nil {
		return 0, fmt.Errorf("token balance: pack: %w", err)
	}

	ctf := common.HexToAddress(ctfAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &ctf,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("token balance: call: %w", err)
	}

	vals, err := balanceOfERC1155.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("token balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	shares := new(big.Float).SetInt(raw)
	shares.Quo(shares, big.NewFloat(1e6))
	f, _ := shares.Float64()
	return f, nil
}

// isNegRisk queries (and caches) whether a token trades on the NegRisk
// adapter contract instead of the standard CTF exchange.
func (tc *TradingClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	tc.negRiskMu.Lock()
	if v, ok := tc.negRiskCache[tokenID]; ok {
		tc.negRiskMu.Unlock()
		return v, nil
	}
	tc.negRiskMu.Unlock()

	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)
	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}

	tc.negRiskMu.Lock()
	tc.negRiskCache[tokenID] = resp.NegRisk
	tc.negRiskMu.Unlock()
	return resp.NegRisk, nil
}
