// Package notify delivers bulk messages to players.
//
// Delivery is fire-and-forget from the scheduler's point of view: a
// send failure is reported to the caller but recipients are always
// addressed as a single bulk message, never one request per player.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/config"
)

// Message is one bulk notification.
type Message struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Sender delivers a message to a set of recipients.
type Sender interface {
	Send(ctx context.Context, recipients []string, msg Message) error
}

// NewSender builds a Sender from configuration: a webhook sender when
// a URL is configured, otherwise a log-only sender.
func NewSender(cfg config.NotificationsConfig) (Sender, error) {
	if cfg.WebhookURL == "" {
		return &LogSender{}, nil
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	return NewWebhookSender(cfg.WebhookURL, timeout), nil
}

// LogSender records messages in the log instead of delivering them.
// Used when no delivery endpoint is configured.
type LogSender struct{}

// Send logs the message.
func (*LogSender) Send(_ context.Context, recipients []string, msg Message) error {
	slog.Info("notification logged (no webhook configured)",
		"subject", msg.Subject,
		"recipients", len(recipients),
	)
	return nil
}

// WebhookSender posts messages to a bulk-send endpoint as JSON.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for the given endpoint.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type webhookPayload struct {
	Recipients []string `json:"recipients"`
	Message
}

// Send posts the message and recipients to the webhook.
func (s *WebhookSender) Send(ctx context.Context, recipients []string, msg Message) error {
	if len(recipients) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Recipients: recipients,
		Message:    msg,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}

	slog.Info("notification sent",
		"subject", msg.Subject,
		"recipients", len(recipients),
	)
	return nil
}
