package polymarket_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvariitoSW/produccion/internal/adapters/polymarket"
	"github.com/alvariitoSW/produccion/internal/domain"
)

// Clave de prueba pública (vector de test de go-ethereum), sin fondos reales.
const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe512961708279f0d8b237c26c9c7a5b"

func testCreds() *polymarket.APICredentials {
	return &polymarket.APICredentials{
		APIKey:     "test-api-key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("test-secret")),
		Passphrase: "test-passphrase",
	}
}

// newTestClient crea un TradingClient apuntando al servidor de test. El RPC
// apunta a un endpoint que no se usa en estos tests.
func newTestClient(t *testing.T, srv *httptest.Server) *polymarket.TradingClient {
	t.Helper()
	auth, err := polymarket.NewAuthClient(srv.URL, srv.URL, testPrivateKey, "", testCreds())
	require.NoError(t, err)
	tc, err := polymarket.NewTradingClient(auth, "http://localhost:8545")
	require.NoError(t, err)
	return tc
}

func TestFetchEventBySlug(t *testing.T) {
	const slug = "bitcoin-up-or-down-august-24-3pm-et"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, slug, r.URL.Query().Get("slug"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{
			"slug": "` + slug + `",
			"title": "Bitcoin Up or Down",
			"markets": [{
				"conditionId": "0xabc123",
				"clobTokenIds": "[\"111111\", \"222222\"]",
				"outcomes": "[\"Up\", \"Down\"]",
				"active": true
			}]
		}]`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	start := time.Now().UTC().Add(time.Hour)

	ev, err := client.FetchEventBySlug(context.Background(), slug, start)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, slug, ev.Slug)
	assert.Equal(t, "0xabc123", ev.ConditionID)
	assert.Equal(t, "111111", ev.YesTokenID)
	assert.Equal(t, "222222", ev.NoTokenID)
	assert.Equal(t, domain.PhasePreMarket, ev.Phase)
}

func TestFetchEventBySlug_NotListedYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)

	// Los eventos horarios se listan poco antes de su hora: un slug futuro sin
	// resultado no es un error.
	ev, err := client.FetchEventBySlug(context.Background(), "future-slug", time.Now().Add(6*time.Hour))
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestGetOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"asset_id": "tok-1",
			"bids": [
				{"price": "0.30", "size": "100"},
				{"price": "0.42", "size": "50"},
				{"price": "0", "size": "0"}
			],
			"asks": [{"price": "0.55", "size": "25"}]
		}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	book, err := tc.GetOrderBook(context.Background(), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", book.TokenID)
	require.Len(t, book.Bids, 2) // el nivel a cero se filtra
	assert.Equal(t, 0.42, book.BestBid(0.10))
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 0.55, book.Asks[0].Price)
}

func TestGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/order/order-1", r.URL.Path)
		// Headers L2 presentes en cada petición autenticada.
		assert.NotEmpty(t, r.Header.Get("POLY_ADDRESS"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "test-api-key", r.Header.Get("POLY_API_KEY"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "order-1",
			"asset_id": "tok-1",
			"side": "buy",
			"price": "0.48",
			"original_size": "30",
			"size_matched": "12.5",
			"status": "live"
		}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	od, err := tc.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.NotNil(t, od)

	assert.Equal(t, "order-1", od.ID)
	assert.Equal(t, "BUY", od.Side) // normalizado a mayúsculas
	assert.Equal(t, "LIVE", od.Status)
	assert.Equal(t, 0.48, od.Price)
	assert.Equal(t, 12.5, od.SizeMatched)
}

func TestGetOrder_UnknownIsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	od, err := tc.GetOrder(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, od)
}

func TestGetOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "a", "asset_id": "tok-1", "side": "BUY", "price": "0.47", "original_size": "30", "size_matched": "0", "status": "LIVE"},
				{"id": "b", "asset_id": "tok-2", "side": "SELL", "price": "0.49", "original_size": "30", "size_matched": "10", "status": "LIVE"}
			],
			"next_cursor": "LTE="
		}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	orders, err := tc.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, 10.0, orders[1].SizeMatched)
}

func TestCancelOrdersBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		assert.Equal(t, []string{"a", "b", "c"}, ids)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"canceled": ["a", "b"],
			"not_canceled": {"c": "order already matched"}
		}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	n, err := tc.CancelOrdersBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCancelOrdersBatch_EmptyIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty batch")
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	n, err := tc.CancelOrdersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/cancel-all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"canceled": ["a", "b", "c"], "not_canceled": {}}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	n, err := tc.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPlaceLimitOrder(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/neg-risk":
			w.Write([]byte(`{"neg_risk": false}`))
		case "/order":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.Write([]byte(`{"success": true, "orderID": "clob-order-1", "status": "live"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	order, err := tc.PlaceLimitOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID:   "123456",
		Side:      domain.SideYes,
		Type:      domain.TypeBuy,
		Price:     0.48,
		Size:      30,
		EventSlug: "bitcoin-up-or-down-august-24-3pm-et",
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "clob-order-1", order.OrderID)
	assert.Equal(t, 0.48, order.Price)

	require.NotNil(t, received)
	assert.Equal(t, "GTC", received["orderType"])
	assert.Equal(t, "test-api-key", received["owner"])

	body := received["order"].(map[string]any)
	assert.Equal(t, "BUY", body["side"])
	// BUY: maker = USDC micro (0.48 × 30 = 14.40), taker = shares micro.
	assert.Equal(t, "14400000", body["makerAmount"])
	assert.Equal(t, "30000000", body["takerAmount"])
	assert.NotEmpty(t, body["signature"])
}

func TestPlaceLimitOrder_CLOBErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/neg-risk":
			w.Write([]byte(`{"neg_risk": false}`))
		default:
			w.Write([]byte(`{"success": false, "errorMsg": "not enough balance / allowance"}`))
		}
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)

	_, err := tc.PlaceLimitOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "123456", Side: domain.SideYes, Type: domain.TypeBuy,
		Price: 0.48, Size: 30,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}
