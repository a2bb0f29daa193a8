// Package gateway предоставляет клиент для платёжного шлюза Korapay.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrChargeNotFound возвращается, если шлюз не знает указанный референс.
var ErrChargeNotFound = errors.New("charge not found")

// ChargeStatusSuccess — статус успешно завершённого платежа на стороне шлюза.
const ChargeStatusSuccess = "success"

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *retryablehttp.Client
}

// Charge описывает состояние платежа по данным шлюза.
type Charge struct {
	Reference  string  `json:"reference"`
	Status     string  `json:"status"`
	AmountPaid float64 `json:"amount_paid"`
	Currency   string  `json:"currency"`
}

type chargeResponse struct {
	Status bool   `json:"status"`
	Data   Charge `json:"data"`
}

// NewClient создаёт HTTP-клиент шлюза с ограниченными повторами и таймаутом запроса.
func NewClient(baseURL, secretKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: rc,
	}
}

// GetCharge запрашивает у шлюза состояние платежа по референсу.
func (c *Client) GetCharge(ctx context.Context, reference string) (*Charge, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("gateway client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	url := fmt.Sprintf("%s/merchant/api/v1/charges/%s", base, reference)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrChargeNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !result.Status {
		return nil, ErrChargeNotFound
	}

	return &result.Data, nil
}
