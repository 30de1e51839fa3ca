package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const recvWindow = "5000"

// RESTClient calls Bybit's V5 REST API. Private endpoints (wallet balance,
// position list) require an API key pair; public ones work without.
type RESTClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

func NewRESTClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// OpenPosition is one open position as reported by the exchange.
type OpenPosition struct {
	Symbol    string
	Side      string // "Buy" or "Sell"
	Size      float64
	AvgPrice  float64
	Leverage  float64
	CreatedAt time.Time
}

// GetAvailableBalance fetches the unified account's available USDT balance.
func (c *RESTClient) GetAvailableBalance(ctx context.Context) (float64, error) {
	raw, err := c.getSigned(ctx, "/v5/account/wallet-balance", "accountType=UNIFIED")
	if err != nil {
		return 0, err
	}

	var result WalletBalanceResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode result: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("empty wallet balance response")
	}

	balance, err := strconv.ParseFloat(result.List[0].TotalAvailableBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", result.List[0].TotalAvailableBalance, err)
	}
	return balance, nil
}

// GetOpenPositions fetches all open linear positions settled in USDT.
func (c *RESTClient) GetOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	raw, err := c.getSigned(ctx, "/v5/position/list", "category=linear&settleCoin=USDT")
	if err != nil {
		return nil, err
	}

	var result PositionListResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	var positions []OpenPosition
	for _, p := range result.List {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil || size == 0 {
			continue // closed or unparsable row
		}
		avg, _ := strconv.ParseFloat(p.AvgPrice, 64)
		lev, _ := strconv.ParseFloat(p.Leverage, 64)
		createdMs, _ := strconv.ParseInt(p.CreatedTime, 10, 64)

		positions = append(positions, OpenPosition{
			Symbol:    p.Symbol,
			Side:      p.Side,
			Size:      size,
			AvgPrice:  avg,
			Leverage:  lev,
			CreatedAt: time.UnixMilli(createdMs),
		})
	}
	return positions, nil
}

// GetLinearSymbols fetches tradable USDT-quoted linear symbols.
func (c *RESTClient) GetLinearSymbols(ctx context.Context) ([]string, error) {
	endpoint := c.baseURL + "/v5/market/instruments-info?category=linear&limit=1000"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result InstrumentListResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	var symbols []string
	for _, instrument := range result.List {
		if instrument.QuoteCoin == "USDT" && instrument.Status == "Trading" {
			symbols = append(symbols, instrument.Symbol)
		}
	}
	return symbols, nil
}

// getSigned performs an authenticated GET per Bybit's V5 signing scheme:
// sign = HMAC_SHA256(secret, timestamp + apiKey + recvWindow + query).
func (c *RESTClient) getSigned(ctx context.Context, path, query string) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + recvWindow + query))

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))

	return c.do(req)
}

// do executes the request and unwraps the standard response envelope.
func (c *RESTClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bybit error: %s", body)
	}

	var rawResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", rawResp.RetCode, rawResp.RetMsg)
	}

	return rawResp.Result, nil
}
