package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	alertPrefix           = "🚨 **Alert**: "
)

// WebhookPayload is the Discord-compatible body posted for each alert.
type WebhookPayload struct {
	Content string `json:"content"`
}

// Webhook posts alerts to a chat webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a Webhook. A zero timeout uses five seconds.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify sends message with the alert prefix. Any non-2xx reply is an error.
func (w *Webhook) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(WebhookPayload{Content: alertPrefix + message})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
