package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRESTClient(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, "test-key", "test-secret", 5*time.Second)
}

func TestGetAvailableBalance(t *testing.T) {
	c := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/account/wallet-balance", r.URL.Path)
		assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))

		// Signing headers must always be present on private endpoints.
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, recvWindow, r.Header.Get("X-BAPI-RECV-WINDOW"))

		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{
			"list":[{"accountType":"UNIFIED","totalAvailableBalance":"10250.75"}]}}`))
	})

	balance, err := c.GetAvailableBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10250.75, balance)
}

func TestGetAvailableBalanceAPIError(t *testing.T) {
	c := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10003,"retMsg":"API key is invalid.","result":{}}`))
	})

	_, err := c.GetAvailableBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10003")
}

func TestGetOpenPositionsSkipsFlatRows(t *testing.T) {
	c := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/position/list", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))

		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","side":"Buy","size":"0.5","avgPrice":"50000","leverage":"5","createdTime":"1700000000000"},
			{"symbol":"ETHUSDT","side":"Sell","size":"0","avgPrice":"0","leverage":"5","createdTime":"1700000000000"}
		]}}`))
	})

	positions, err := c.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1, "zero-size rows are not open positions")

	p := positions[0]
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.Equal(t, "Buy", p.Side)
	assert.Equal(t, 0.5, p.Size)
	assert.Equal(t, 50000.0, p.AvgPrice)
	assert.Equal(t, 5.0, p.Leverage)
	assert.Equal(t, time.UnixMilli(1700000000000), p.CreatedAt)
}

func TestGetLinearSymbolsFiltersTradableUSDT(t *testing.T) {
	c := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/instruments-info", r.URL.Path)

		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"},
			{"symbol":"BTCPERP","baseCoin":"BTC","quoteCoin":"USDC","status":"Trading"},
			{"symbol":"OLDUSDT","baseCoin":"OLD","quoteCoin":"USDT","status":"Closed"}
		]}}`))
	})

	symbols, err := c.GetLinearSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, symbols)
}

func TestHTTPErrorSurfacesBody(t *testing.T) {
	c := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	})

	_, err := c.GetAvailableBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseKlineInterval(t *testing.T) {
	meta, err := ParseKlineInterval("15")
	require.NoError(t, err)
	assert.Equal(t, "15m", meta.Display)
	assert.Equal(t, 15, meta.Minutes)

	_, err = ParseKlineInterval("7")
	assert.Error(t, err)

	assert.True(t, Interval5Min.IsValid())
	assert.False(t, KlineInterval("2").IsValid())
}
