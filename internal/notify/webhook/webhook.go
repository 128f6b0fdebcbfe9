// Package webhook delivers reminders as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payload is the request body sent for every reminder.
type Payload struct {
	Owner  string    `json:"owner"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Webhook posts reminders to a fixed URL.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a webhook notifier. A zero timeout leaves the deadline to the caller's context.
func New(url string, headers map[string]string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the notifier identifier.
func (w *Webhook) Name() string {
	return "webhook"
}

// Send posts the reminder. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, owner, text string) error {
	body, err := json.Marshal(Payload{Owner: owner, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
