package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tradekeeper/internal/config"
	"tradekeeper/internal/executor"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error (%d): %s", e.Status, e.Body)
}

// Client talks to the exchange/custody gateway. It implements both the
// swap collaborator and the settlement-asset wrapper collaborator.
type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(httpClient *http.Client, cfg config.ExchangeConfig) *Client {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		host:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type swapRequest struct {
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	FeeTier      int             `json:"fee_tier"`
	Recipient    string          `json:"recipient"`
	Deadline     int64           `json:"deadline"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	PriceLimit   decimal.Decimal `json:"price_limit"`
}

type swapResponse struct {
	AmountOut decimal.Decimal `json:"amount_out"`
}

func (c *Client) SwapExactInput(ctx context.Context, params executor.SwapParams) (decimal.Decimal, error) {
	req := swapRequest{
		TokenIn:      params.TokenIn,
		TokenOut:     params.TokenOut,
		FeeTier:      params.FeeTier,
		Recipient:    params.Recipient,
		Deadline:     params.Deadline.Unix(),
		AmountIn:     params.AmountIn,
		MinAmountOut: params.MinAmountOut,
		PriceLimit:   params.PriceLimit,
	}
	var resp swapResponse
	if err := c.post(ctx, "/v1/swap/exact-input", req, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.AmountOut, nil
}

type transferRequest struct {
	Asset  string          `json:"asset,omitempty"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Native bool            `json:"native,omitempty"`
}

func (c *Client) TransferFrom(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/transfers/pull", transferRequest{Asset: asset, From: from, To: to, Amount: amount}, nil)
}

func (c *Client) Transfer(ctx context.Context, asset, to string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/transfers", transferRequest{Asset: asset, To: to, Amount: amount}, nil)
}

func (c *Client) TransferNative(ctx context.Context, to string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/transfers", transferRequest{To: to, Amount: amount, Native: true}, nil)
}

type wrapRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/wrap/deposit", wrapRequest{Amount: amount}, nil)
}

func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/wrap/withdraw", wrapRequest{Amount: amount}, nil)
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func (c *Client) BalanceOf(ctx context.Context, asset, holder string) (decimal.Decimal, error) {
	if c == nil || c.host == "" {
		return decimal.Zero, fmt.Errorf("exchange host is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	url := fmt.Sprintf("%s/v1/balances/%s/%s", c.host, asset, holder)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return decimal.Zero, err
	}
	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance: %w", err)
	}
	return resp.Balance, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c == nil || c.host == "" {
		return fmt.Errorf("exchange host is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
