package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quanttrader/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosePosition(t *testing.T) {
	var got closeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/positions/close", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.ClosePosition(context.Background(), "BTCUSDT", model.SideLong, 0.5)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, "LONG", got.Side)
	assert.Equal(t, 0.5, got.Quantity)
}

func TestClosePositionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such position", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.ClosePosition(context.Background(), "BTCUSDT", model.SideLong, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "no such position")
}

func TestClosePositionServiceDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	err := c.ClosePosition(context.Background(), "BTCUSDT", model.SideShort, 0.5)
	assert.Error(t, err)
}
