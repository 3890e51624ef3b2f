package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradekeeper/internal/config"
)

// Reporter is the external status-report collaborator. The scheduler calls
// it once per account when the report-due trigger fires; failures are caught
// by the scheduler, never propagated across accounts.
type Reporter interface {
	CheckAndEmitReport(ctx context.Context, account string) error
}

// WebhookReporter posts the report request to a webhook relay.
type WebhookReporter struct {
	httpClient *http.Client
	url        string
}

func NewWebhookReporter(cfg config.ReportConfig) *WebhookReporter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookReporter{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimSpace(cfg.WebhookURL),
	}
}

type reportRequest struct {
	Account     string `json:"account"`
	RequestedAt int64  `json:"requested_at"`
}

func (r *WebhookReporter) CheckAndEmitReport(ctx context.Context, account string) error {
	if r == nil || r.url == "" {
		return nil
	}
	raw, err := json.Marshal(reportRequest{Account: account, RequestedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("report webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
