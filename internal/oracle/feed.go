package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oracle feed error (%d): %s", e.Status, e.Body)
}

// FeedClient polls the feed's latest-round endpoint over HTTP.
type FeedClient struct {
	host       string
	httpClient *http.Client
}

func NewFeedClient(httpClient *http.Client, host string) *FeedClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	return &FeedClient{
		host:       host,
		httpClient: httpClient,
	}
}

type roundPayload struct {
	RoundID         uint64          `json:"round_id"`
	Answer          decimal.Decimal `json:"answer"`
	UpdatedAt       int64           `json:"updated_at"`
	AnsweredInRound uint64          `json:"answered_in_round"`
}

func (c *FeedClient) LatestRound(ctx context.Context) (Round, error) {
	if c == nil || c.host == "" {
		return Round{}, fmt.Errorf("oracle feed host is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/rounds/latest", nil)
	if err != nil {
		return Round{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Round{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Round{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Round{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var payload roundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Round{}, fmt.Errorf("failed to decode round: %w", err)
	}
	return Round{
		RoundID:         payload.RoundID,
		Answer:          payload.Answer,
		UpdatedAt:       time.Unix(payload.UpdatedAt, 0).UTC(),
		AnsweredInRound: payload.AnsweredInRound,
	}, nil
}
