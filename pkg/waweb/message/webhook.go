// Package message – webhook.go delivers inbound message notifications to a
// configured HTTP endpoint. Delivery is best-effort: one POST with a hard
// timeout, no retries, failures only logged by the caller.
package message

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookConfig configures the notifier.
type WebhookConfig struct {
	// URL is the endpoint to POST to. Empty disables webhooks.
	URL string `yaml:"url"`

	// Token, when set, is sent as a bearer token.
	Token string `yaml:"token"`

	// Timeout is the hard per-delivery timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// webhookEnvelope is the fixed wire format.
type webhookEnvelope struct {
	Event   string         `json:"event"`
	Payload webhookPayload `json:"payload"`
}

// webhookPayload carries exactly the published message fields. Unlike
// Record it never omits author or notifyName and never exposes the
// internal processed flag.
type webhookPayload struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
	Kind       Kind   `json:"type"`
	IsGroup    bool   `json:"isGroupMsg"`
	Author     string `json:"author"`
	NotifyName string `json:"notifyName"`
	FromMe     bool   `json:"fromMe"`
}

func newWebhookPayload(rec *Record) webhookPayload {
	return webhookPayload{
		ID:         rec.ID,
		From:       rec.From,
		To:         rec.To,
		Body:       rec.Body,
		Timestamp:  rec.Timestamp,
		Kind:       rec.Kind,
		IsGroup:    rec.IsGroup,
		Author:     rec.Author,
		NotifyName: rec.NotifyName,
		FromMe:     rec.FromMe,
	}
}

// Notifier posts message notifications to the configured endpoint.
type Notifier struct {
	cfg    WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewNotifier builds a Notifier. Returns nil when no URL is configured so
// callers can treat the webhook as absent.
func NewNotifier(cfg WebhookConfig, logger *slog.Logger) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "webhook"),
	}
}

// Notify delivers one message notification. The record is embedded as the
// payload of the fixed {event:"message", payload:{...}} envelope.
func (n *Notifier) Notify(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(webhookEnvelope{Event: "message", Payload: newWebhookPayload(rec)})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}
