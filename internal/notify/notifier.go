// Package notify delivers operator-facing messages rendered from pipeline
// events. Each event kind (decision made, execution failed, position
// reconciled) maps to a short headline; senders decide how to format it for
// their channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/avelichko/scorebot/internal/domain"
)

// Notification is one operator-facing message rendered from a pipeline
// event.
type Notification struct {
	Kind       string // domain event kind
	Instrument string
	Summary    string
}

// Headline returns the human headline for the notification's event kind.
func (n Notification) Headline() string {
	switch n.Kind {
	case domain.EventDecisionMade:
		return "Decision"
	case domain.EventExecutionFailed:
		return "Execution failed"
	case domain.EventPositionReconciled:
		return "Position reconciled"
	default:
		return n.Kind
	}
}

// Sender is one delivery channel (Telegram chat, Discord webhook).
type Sender interface {
	Deliver(ctx context.Context, n Notification) error
	Name() string
}

// Notifier fans a notification out to every configured sender, filtered by
// event kind. An empty filter forwards everything.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. kinds
// restricts delivery to those event kinds; leave it empty to forward all.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the notification to every sender whose filter admits its
// kind. One sender failing does not stop the others; all failures come back
// joined.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[note.Kind]; !ok {
			return nil
		}
	}

	var errs error
	for _, s := range n.senders {
		if err := s.Deliver(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", note.Kind),
				slog.String("error", err.Error()),
			)
			errs = errors.Join(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}

// postJSON marshals body and POSTs it, treating any non-2xx response as an
// error carrying the first KB of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
