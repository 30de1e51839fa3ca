package bybit

import "encoding/json"

// Response represents a generic response from Bybit's V5 REST API.
// This structure covers the standard response envelope used across all endpoints.
type Response struct {
	RetCode    int                    `json:"retCode"`    // 0 means success; non-zero indicates an error code
	RetMsg     string                 `json:"retMsg"`     // Human-readable message describing the result or error
	Result     json.RawMessage        `json:"result"`     // Delay decoding // Main response payload (varies per endpoint)
	RetExtInfo map[string]interface{} `json:"retExtInfo"` // Optional extra info (e.g. rate limits, error hints)
	Time       int64                  `json:"time"`       // Server timestamp (in milliseconds since epoch)
}

// StreamEnvelope is the outer frame of every public stream message.
// Subscription acks carry Op/Success instead of Topic.
type StreamEnvelope struct {
	Topic   string          `json:"topic"`   // e.g., "publicTrade.BTCUSDT", "kline.5.BTCUSDT"
	Type    string          `json:"type"`    // "snapshot" or "delta"
	Ts      int64           `json:"ts"`      // message timestamp (ms)
	Data    json.RawMessage `json:"data"`    // topic-specific payload, decoded downstream
	Op      string          `json:"op"`      // set on control frames ("subscribe", "pong")
	Success bool            `json:"success"` // ack result for control frames
	RetMsg  string          `json:"ret_msg"` // ack detail
}

// Trade is one public trade tick.
type Trade struct {
	Timestamp int64  `json:"T"` // fill timestamp (ms)
	Symbol    string `json:"s"`
	Side      string `json:"S"` // taker side, "Buy" or "Sell"
	Volume    string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

// Kline represents a single candlestick received from the stream.
type Kline struct {
	Start     int64  `json:"start"`     // Start time of the kline (ms since epoch)
	End       int64  `json:"end"`       // End time of the kline (ms since epoch)
	Interval  string `json:"interval"`  // Interval of the kline (e.g., "1", "5", "15") — in minutes
	Open      string `json:"open"`      // Opening price
	Close     string `json:"close"`     // Closing price
	High      string `json:"high"`      // Highest price during the interval
	Low       string `json:"low"`       // Lowest price during the interval
	Volume    string `json:"volume"`    // Trade volume (number of units traded)
	Turnover  string `json:"turnover"`  // Total traded value (usually in USD)
	Confirm   bool   `json:"confirm"`   // Whether the kline is finalized (true when the interval closes)
	Timestamp int64  `json:"timestamp"` // Time when the event was generated (ms since epoch)
}

// WalletBalanceResponse is the unified-account wallet balance payload.
type WalletBalanceResponse struct {
	List []struct {
		AccountType           string `json:"accountType"`
		TotalEquity           string `json:"totalEquity"`
		TotalAvailableBalance string `json:"totalAvailableBalance"`
		Coin                  []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

// PositionListResponse is the open position list payload.
type PositionListResponse struct {
	Category       string `json:"category"`
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol      string `json:"symbol"`
		Side        string `json:"side"` // "Buy" or "Sell"
		Size        string `json:"size"`
		AvgPrice    string `json:"avgPrice"`
		Leverage    string `json:"leverage"`
		CreatedTime string `json:"createdTime"` // ms since epoch
	} `json:"list"`
}

// InstrumentListResponse is the instruments-info payload.
type InstrumentListResponse struct {
	Category       string `json:"category"` // e.g., "linear", "spot"
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`    // e.g., "BTCUSDT"
		BaseCoin  string `json:"baseCoin"`  // e.g., "BTC"
		QuoteCoin string `json:"quoteCoin"` // e.g., "USDT"
		Status    string `json:"status"`
	} `json:"list"`
}
