package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Telegram delivers notifications through the Bot API's sendMessage call.
type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
}

// NewTelegram creates a Telegram sender for the given bot token and chat.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		endpoint: "https://api.telegram.org/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver renders the notification as a Markdown message with a bold
// headline and the instrument in a code span.
func (t *Telegram) Deliver(ctx context.Context, n Notification) error {
	body := struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{
		ChatID:    t.chatID,
		Text:      fmt.Sprintf("*%s* `%s`\n%s", n.Headline(), n.Instrument, n.Summary),
		ParseMode: "Markdown",
	}
	if err := postJSON(ctx, t.client, t.endpoint, body); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *Telegram) Name() string { return "telegram" }
