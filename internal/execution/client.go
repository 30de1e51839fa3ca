package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quanttrader/internal/model"
)

// Client talks to the external execution service, the collaborator that
// actually places exchange orders. The engine only asks it to close a
// position ahead of a switch; entries travel as emitted signals instead.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type closeRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

// ClosePosition requests a synchronous close. A non-2xx response means the
// position must be assumed still open.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side model.Side, quantity float64) error {
	payload, err := json.Marshal(closeRequest{
		Symbol:   symbol,
		Side:     string(side),
		Quantity: quantity,
	})
	if err != nil {
		return fmt.Errorf("encode close request: %w", err)
	}

	endpoint := c.baseURL + "/positions/close"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("execution service error (%d): %s", resp.StatusCode, body)
	}
	return nil
}
