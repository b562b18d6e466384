package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Discord delivers notifications through a webhook. Discord answers 204 No
// Content on success.
type Discord struct {
	webhookURL string
	client     *http.Client
}

// NewDiscord creates a Discord sender for the given webhook URL.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver renders the notification as a single webhook message.
func (d *Discord) Deliver(ctx context.Context, n Notification) error {
	body := struct {
		Content string `json:"content"`
	}{
		Content: fmt.Sprintf("**%s** `%s`\n%s", n.Headline(), n.Instrument, n.Summary),
	}
	if err := postJSON(ctx, d.client, d.webhookURL, body); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *Discord) Name() string { return "discord" }
