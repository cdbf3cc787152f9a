// Package notify delivers registration events to an external webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EventMemberRegistered is sent after a member has been stored.
const EventMemberRegistered = "member.registered"

// WebhookPayload is the JSON body sent to the configured webhook URL.
type WebhookPayload struct {
	Event      string `json:"event"`
	MemberID   string `json:"member_id"`
	Name       string `json:"name"`
	BloodGroup string `json:"blood_group"`
	ProfileURL string `json:"profile_url,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// WebhookSender POSTs payloads to an external HTTP endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhookSender creates a WebhookSender ready to POST payloads to the given
// url. If url is empty the sender is a no-op (Send returns nil immediately).
func NewWebhookSender(url string, log *slog.Logger) *WebhookSender {
	return &WebhookSender{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *WebhookSender) Enabled() bool {
	return w != nil && w.url != ""
}

// Send delivers a webhook payload. Non-2xx responses are logged, not returned.
func (w *WebhookSender) Send(ctx context.Context, payload *WebhookPayload) error {
	if !w.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Error("webhook delivery failed", "error", err, "member_id", payload.MemberID)
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.log.Info("webhook delivered", "status", resp.StatusCode, "member_id", payload.MemberID)
	} else {
		w.log.Warn("webhook non-2xx response", "status", resp.StatusCode, "member_id", payload.MemberID)
	}
	return nil
}
