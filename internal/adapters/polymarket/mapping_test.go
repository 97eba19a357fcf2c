package polymarket

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapClobOrder_NormalisesCase(t *testing.T) {
	od := mapClobOrder(clobOrder{
		ID:           "x",
		AssetID:      "tok",
		Side:         "buy",
		Price:        "0.47",
		OriginalSize: "30",
		SizeMatched:  "7.25",
		Status:       "canceled", // la API usa la grafía americana
	})

	assert.Equal(t, "BUY", od.Side)
	assert.Equal(t, "CANCELED", od.Status)
	assert.True(t, od.IsCancelled())
	assert.Equal(t, 7.25, od.SizeMatched)
}

func TestMapGammaEvent(t *testing.T) {
	start := time.Now().UTC().Add(time.Hour)
	ev, err := mapGammaEvent(gammaEvent{
		Markets: []gammaMarket{{
			ConditionID:  "0xcond",
			ClobTokenIDs: `["111", "222"]`,
		}},
	}, "some-slug", start)

	require.NoError(t, err)
	assert.Equal(t, "some-slug", ev.Slug)
	assert.Equal(t, "0xcond", ev.ConditionID)
	assert.Equal(t, "111", ev.YesTokenID)
	assert.Equal(t, "222", ev.NoTokenID)
	assert.Equal(t, start, ev.StartTime)
}

func TestMapGammaEvent_Malformed(t *testing.T) {
	start := time.Now().UTC()

	_, err := mapGammaEvent(gammaEvent{}, "s", start)
	assert.Error(t, err) // sin mercados

	_, err = mapGammaEvent(gammaEvent{
		Markets: []gammaMarket{{ClobTokenIDs: `not json`}},
	}, "s", start)
	assert.Error(t, err)

	_, err = mapGammaEvent(gammaEvent{
		Markets: []gammaMarket{{ClobTokenIDs: `["solo-uno"]`}},
	}, "s", start)
	assert.Error(t, err)
}

func TestDetectPricePrecision(t *testing.T) {
	assert.Equal(t, int64(100), detectPricePrecision(0.48))
	assert.Equal(t, int64(100), detectPricePrecision(0.60))
	assert.Equal(t, int64(1000), detectPricePrecision(0.673))
	assert.Equal(t, int64(10000), detectPricePrecision(0.1234))
}

func TestBuildSignedOrder_Amounts(t *testing.T) {
	ac, err := NewAuthClient("", "", "4c0883a69102937d6231471b5dbb6204fe512961708279f0d8b237c26c9c7a5b", "", nil)
	require.NoError(t, err)

	// BUY: maker paga USDC, taker entrega shares.
	buy, err := ac.buildSignedOrder("123456", 0.48, 30, false, false)
	require.NoError(t, err)
	assert.Equal(t, "14400000", buy.Order.MakerAmount.String())
	assert.Equal(t, "30000000", buy.Order.TakerAmount.String())

	// SELL: los amounts se invierten.
	sell, err := ac.buildSignedOrder("123456", 0.49, 30, true, false)
	require.NoError(t, err)
	assert.Equal(t, "30000000", sell.Order.MakerAmount.String())
	assert.Equal(t, "14700000", sell.Order.TakerAmount.String())

	// Las fracciones por debajo del céntimo se truncan, nunca se redondean
	// hacia arriba: vender de más falla on-chain.
	trunc, err := ac.buildSignedOrder("123456", 0.49, 12.345678, true, false)
	require.NoError(t, err)
	assert.Equal(t, "12340000", trunc.Order.MakerAmount.String())
}

func TestBuildSignedOrder_ProxyWalletUsesFunderAsMaker(t *testing.T) {
	const funder = "0x1111111111111111111111111111111111111111"
	ac, err := NewAuthClient("", "", "4c0883a69102937d6231471b5dbb6204fe512961708279f0d8b237c26c9c7a5b", funder, nil)
	require.NoError(t, err)

	signed, err := ac.buildSignedOrder("123456", 0.48, 30, false, false)
	require.NoError(t, err)

	// El proxy wallet posee los fondos; la EOA solo firma.
	assert.Equal(t, funder, signed.Order.Maker.Hex())
	assert.Equal(t, ac.address, signed.Order.Signer)
	assert.NotEqual(t, signed.Order.Maker, signed.Order.Signer)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&statusError{Status: http.StatusNotFound}))
	assert.False(t, isNotFound(&statusError{Status: http.StatusBadRequest}))
	assert.False(t, isNotFound(fmt.Errorf("network down")))
}

func TestLimiterFor(t *testing.T) {
	ac, err := NewAuthClient("", "", "4c0883a69102937d6231471b5dbb6204fe512961708279f0d8b237c26c9c7a5b", "", nil)
	require.NoError(t, err)

	// POST /order usa el limiter estricto; el resto el general.
	assert.Same(t, ac.orderLimiter, ac.limiterFor(http.MethodPost, "/order"))
	assert.Same(t, ac.clobLimiter, ac.limiterFor(http.MethodGet, "/orders"))
	assert.Same(t, ac.clobLimiter, ac.limiterFor(http.MethodDelete, "/order/abc"))
}
