package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelichko/scorebot/internal/domain"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Events publishes structured pipeline events to the signal bus, the audit
// log, and the chat senders. Delivery failures are logged but never fail the
// calling operation: a trade must not be lost because a webhook was down.
type Events struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *Notifier
	logger   *slog.Logger
}

// NewEvents creates an Events publisher. bus, audit and notifier may each be
// nil, in which case that sink is skipped.
func NewEvents(bus domain.SignalBus, audit domain.AuditStore, notifier *Notifier, logger *slog.Logger) *Events {
	return &Events{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// DecisionMade records the outcome of one decision cycle.
func (e *Events) DecisionMade(ctx context.Context, d domain.Decision) {
	detail := map[string]any{
		"action":          string(d.Action),
		"score":           d.Score,
		"target_quantity": d.TargetQuantity,
		"reason":          d.Reason,
	}
	summary := fmt.Sprintf("%s score=%.3f target=%.6f reason=%s", d.Action, d.Score, d.TargetQuantity, d.Reason)
	e.emit(ctx, domain.EventDecisionMade, d.Instrument, detail, summary)
}

// ExecutionFailed records an abandoned execution after the retry budget was
// exhausted or the exchange rejected the order.
func (e *Events) ExecutionFailed(ctx context.Context, instrument string, attempt domain.ExecutionAttempt, reason string) {
	detail := map[string]any{
		"order_ref":          attempt.OrderRef,
		"requested_quantity": attempt.RequestedQuantity,
		"filled_quantity":    attempt.FilledQuantity,
		"attempts":           attempt.AttemptCount,
		"outcome":            string(attempt.Outcome),
		"reason":             reason,
	}
	summary := fmt.Sprintf("attempts=%d outcome=%s reason=%s", attempt.AttemptCount, attempt.Outcome, reason)
	e.emit(ctx, domain.EventExecutionFailed, instrument, detail, summary)
}

// PositionReconciled records a divergence correction applied by the
// reconciliation loop.
func (e *Events) PositionReconciled(ctx context.Context, instrument string, detail map[string]any) {
	summary := fmt.Sprintf("correction=%v", detail["correction"])
	e.emit(ctx, domain.EventPositionReconciled, instrument, detail, summary)
}

func (e *Events) emit(ctx context.Context, kind, instrument string, detail map[string]any, summary string) {
	evt := domain.Event{
		Kind:       kind,
		Instrument: instrument,
		Detail:     detail,
		At:         nowUTC(),
	}

	if e.bus != nil {
		if err := e.bus.StreamAppend(ctx, domain.EventStream, evt.Marshal()); err != nil {
			e.logger.WarnContext(ctx, "event stream append failed",
				slog.String("kind", kind),
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.audit != nil {
		auditDetail := map[string]any{"instrument": instrument}
		for k, v := range detail {
			auditDetail[k] = v
		}
		if err := e.audit.Log(ctx, kind, auditDetail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed",
				slog.String("kind", kind),
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.notifier != nil {
		note := Notification{Kind: kind, Instrument: instrument, Summary: summary}
		if err := e.notifier.Notify(ctx, note); err != nil {
			e.logger.WarnContext(ctx, "notification failed",
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}
}
