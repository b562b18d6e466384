// Package decision orchestrates one instrument's trade cycle: it evaluates
// the latest score against the current position, sizes the trade, executes
// it through the gateway with retries, and confirms the fill before local
// state is settled.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/scorebot/internal/allocation"
	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/notify"
	"github.com/avelichko/scorebot/internal/risk"
)

// ProfitTake configures one partial-close level relative to the entry price.
type ProfitTake struct {
	GainPercent float64
	Fraction    float64
}

// Config holds the thresholds and execution parameters for the decision
// cycle. Percent values are relative (1.5 means 1.5%).
type Config struct {
	BuyThreshold         float64
	SellThreshold        float64
	HoldTolerancePercent float64

	StopLossPercent float64
	ProfitTakes     []ProfitTake

	MaxRetryAttempts    int
	RetryBackoffBase    time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	LockTTL             time.Duration
}

// Maker runs the decision cycle for score inputs. All exchange-mutating work
// for an instrument happens under that instrument's distributed lock, and
// position status transitions are optimistic: a concurrent mutation surfaces
// as domain.ErrStateConflict and the cycle is retried once from scratch.
type Maker struct {
	cfg     Config
	store   domain.PositionStore
	sizer   allocation.Sizer
	risk    *risk.Engine
	gateway domain.ExecutionGateway
	account domain.AccountInfo
	prices  domain.PriceCache
	locks   domain.LockManager
	events  *notify.Events
	logger  *slog.Logger
}

// New creates a Maker.
func New(
	cfg Config,
	store domain.PositionStore,
	sizer allocation.Sizer,
	riskEngine *risk.Engine,
	gateway domain.ExecutionGateway,
	account domain.AccountInfo,
	prices domain.PriceCache,
	locks domain.LockManager,
	events *notify.Events,
	logger *slog.Logger,
) *Maker {
	return &Maker{
		cfg:     cfg,
		store:   store,
		sizer:   sizer,
		risk:    riskEngine,
		gateway: gateway,
		account: account,
		prices:  prices,
		locks:   locks,
		events:  events,
		logger:  logger.With(slog.String("component", "decision_maker")),
	}
}

// Process runs one full decision cycle for the score input. When another
// holder owns the instrument's lock the cycle is skipped and
// domain.ErrLockHeld is returned; the next score for the instrument will try
// again.
func (m *Maker) Process(ctx context.Context, in domain.ScoreInput) (domain.Decision, error) {
	unlock, err := m.locks.Acquire(ctx, "decision:"+in.Instrument, m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.DebugContext(ctx, "instrument locked, skipping cycle",
				slog.String("instrument", in.Instrument))
			return hold(in, "instrument locked"), domain.ErrLockHeld
		}
		return domain.Decision{}, fmt.Errorf("decision: acquire lock: %w", err)
	}
	defer unlock()

	d, err := m.cycle(ctx, in)
	if errors.Is(err, domain.ErrStateConflict) {
		// Another attempt mutated the position between our read and write.
		// Re-read and run the whole cycle once more; a second conflict is
		// surfaced to the caller.
		m.logger.WarnContext(ctx, "state conflict, retrying cycle",
			slog.String("instrument", in.Instrument))
		d, err = m.cycle(ctx, in)
	}
	return d, err
}

func (m *Maker) cycle(ctx context.Context, in domain.ScoreInput) (domain.Decision, error) {
	price, priceTS, err := m.prices.GetPrice(ctx, in.Instrument)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("decision: price for %s: %w", in.Instrument, err)
	}

	pos, err := m.store.Get(ctx, in.Instrument)
	flat := false
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Decision{}, fmt.Errorf("decision: load position: %w", err)
		}
		flat = true
	}

	// Protective exits take precedence over anything the score says.
	if !flat && pos.Status == domain.PositionOpen {
		updated, exit, riskErr := m.risk.Evaluate(pos, price, priceTS)
		switch {
		case errors.Is(riskErr, domain.ErrStalePrice):
			m.logger.DebugContext(ctx, "stale price, risk evaluation skipped",
				slog.String("instrument", in.Instrument))
		case riskErr != nil:
			return domain.Decision{}, fmt.Errorf("decision: risk evaluate: %w", riskErr)
		default:
			pos = updated
			if err := m.store.Upsert(ctx, pos); err != nil {
				return domain.Decision{}, fmt.Errorf("decision: persist risk state: %w", err)
			}
			if exit != nil {
				return m.executeExit(ctx, in, pos, *exit)
			}
		}
	}

	d, targetQty, err := m.classify(ctx, in, pos, flat, price)
	if err != nil {
		return domain.Decision{}, err
	}

	switch d.Action {
	case domain.ActionHold:
		return d, nil
	case domain.ActionOpenLong, domain.ActionOpenShort:
		return m.executeOpen(ctx, d, targetQty, price)
	case domain.ActionClose:
		return m.executeClose(ctx, d, pos)
	case domain.ActionAdjust:
		return m.executeAdjust(ctx, d, pos, targetQty, price)
	default:
		return domain.Decision{}, fmt.Errorf("decision: unhandled action %s", d.Action)
	}
}

// classify maps the score and current position to an action and, for opens
// and adjusts, a target quantity.
func (m *Maker) classify(ctx context.Context, in domain.ScoreInput, pos domain.Position, flat bool, price float64) (domain.Decision, float64, error) {
	wantLong := in.Score >= m.cfg.BuyThreshold
	wantShort := in.Score <= m.cfg.SellThreshold

	if !flat && pos.Status != domain.PositionOpen {
		// PENDING_* positions are in flight from another cycle; FAILED ones
		// wait for reconciliation. Either way this cycle does nothing.
		return hold(in, fmt.Sprintf("position %s", pos.Status)), 0, nil
	}

	if flat {
		if !wantLong && !wantShort {
			return hold(in, "score inside thresholds"), 0, nil
		}
		qty, err := m.targetQuantity(ctx, in.Score, "", price)
		if err != nil {
			return domain.Decision{}, 0, err
		}
		if qty <= 0 {
			return hold(in, "allocation below minimum"), 0, nil
		}
		action := domain.ActionOpenLong
		if wantShort {
			action = domain.ActionOpenShort
		}
		return decided(in, action, qty, "score crossed threshold"), qty, nil
	}

	// Score flipped against the open position: close it.
	if (pos.Side == domain.SideLong && wantShort) || (pos.Side == domain.SideShort && wantLong) {
		return decided(in, domain.ActionClose, pos.Quantity, "score reversed"), pos.Quantity, nil
	}

	// Score still in the position's direction: resize toward the new target
	// unless the difference is within tolerance.
	if (pos.Side == domain.SideLong && wantLong) || (pos.Side == domain.SideShort && wantShort) {
		qty, err := m.targetQuantity(ctx, in.Score, pos.Instrument, price)
		if err != nil {
			return domain.Decision{}, 0, err
		}
		if qty <= 0 {
			return hold(in, "allocation below minimum"), 0, nil
		}
		current := pos.Notional(price)
		target := qty * price
		if current > 0 && math.Abs(target-current)/current*100 <= m.cfg.HoldTolerancePercent {
			return hold(in, "target within tolerance"), 0, nil
		}
		return decided(in, domain.ActionAdjust, qty, "resizing to score target"), qty, nil
	}

	return hold(in, "score inside thresholds"), 0, nil
}

// targetQuantity sizes the trade from live account state. excludeInstrument
// removes the instrument's own notional from the exposure sum so a resize is
// capped the same way a fresh open would be.
func (m *Maker) targetQuantity(ctx context.Context, score float64, excludeInstrument string, price float64) (float64, error) {
	equity, err := m.account.Equity(ctx)
	if err != nil {
		return 0, fmt.Errorf("decision: account equity: %w", err)
	}

	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("decision: list open positions: %w", err)
	}
	var exposure float64
	if len(open) > 0 {
		instruments := make([]string, 0, len(open))
		for _, p := range open {
			instruments = append(instruments, p.Instrument)
		}
		priceMap, err := m.prices.GetPrices(ctx, instruments)
		if err != nil {
			return 0, fmt.Errorf("decision: prices for exposure: %w", err)
		}
		for _, p := range open {
			if p.Instrument == excludeInstrument {
				continue
			}
			exposure += p.Notional(priceMap[p.Instrument])
		}
	}

	return m.sizer.Size(score, allocation.AccountState{
		Equity:           equity,
		ExistingExposure: exposure,
		Price:            price,
	}), nil
}

// executeOpen claims the instrument's live slot with a PENDING_OPEN record,
// submits the order, and settles the position as OPEN on confirmation with
// its protective rules attached.
func (m *Maker) executeOpen(ctx context.Context, d domain.Decision, qty, price float64) (domain.Decision, error) {
	side := domain.SideLong
	orderSide := domain.OrderSideBuy
	if d.Action == domain.ActionOpenShort {
		side = domain.SideShort
		orderSide = domain.OrderSideSell
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:           uuid.NewString(),
		Instrument:   d.Instrument,
		Side:         side,
		Status:       domain.PositionPendingOpen,
		LastPriceAt:  now,
		OpenedAt:     now,
		LastSyncedAt: now,
	}
	if err := m.store.Upsert(ctx, pos); err != nil {
		if errors.Is(err, domain.ErrPositionExists) {
			return domain.Decision{}, domain.ErrStateConflict
		}
		return domain.Decision{}, fmt.Errorf("decision: claim position slot: %w", err)
	}

	attempt, err := m.execute(ctx, domain.OrderRequest{
		Instrument: d.Instrument,
		Side:       orderSide,
		Quantity:   qty,
		Type:       domain.OrderTypeMarket,
		ClientRef:  pos.ID,
	}, m.trackRef(ctx, &pos))
	if err != nil {
		m.abandon(ctx, d.Instrument, domain.PositionPendingOpen, attempt, err)
		return domain.Decision{}, fmt.Errorf("decision: open %s: %w", d.Instrument, err)
	}

	pos.Status = domain.PositionOpen
	pos.Quantity = attempt.FilledQuantity
	pos.EntryPrice = attempt.AvgFillPrice
	pos.PendingOrderRef = ""
	if pos.EntryPrice <= 0 {
		pos.EntryPrice = price
	}
	m.Protect(&pos)
	if err := m.store.Upsert(ctx, pos); err != nil {
		return domain.Decision{}, fmt.Errorf("decision: settle open: %w", err)
	}

	if attempt.Outcome == domain.AttemptPartial {
		d.Reason = "partial fill"
	}
	d.TargetQuantity = pos.Quantity
	m.events.DecisionMade(ctx, d)
	m.logger.InfoContext(ctx, "position opened",
		slog.String("instrument", d.Instrument),
		slog.String("side", string(side)),
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("entry_price", pos.EntryPrice),
	)
	return d, nil
}

// executeClose transitions the position to PENDING_CLOSE, flattens it on the
// exchange, and marks it CLOSED once the fill is confirmed.
func (m *Maker) executeClose(ctx context.Context, d domain.Decision, pos domain.Position) (domain.Decision, error) {
	if err := m.store.Transition(ctx, pos.Instrument, domain.PositionOpen, domain.PositionPendingClose); err != nil {
		return domain.Decision{}, fmt.Errorf("decision: begin close: %w", err)
	}
	pos.Status = domain.PositionPendingClose

	attempt, err := m.execute(ctx, domain.OrderRequest{
		Instrument: pos.Instrument,
		Side:       closingSide(pos.Side),
		Quantity:   pos.Quantity,
		Type:       domain.OrderTypeMarket,
		ClientRef:  uuid.NewString(),
	}, m.trackRef(ctx, &pos))
	if err != nil {
		m.abandon(ctx, pos.Instrument, domain.PositionPendingClose, attempt, err)
		return domain.Decision{}, fmt.Errorf("decision: close %s: %w", pos.Instrument, err)
	}

	pos.PendingOrderRef = ""
	if attempt.Outcome == domain.AttemptPartial && attempt.FilledQuantity < pos.Quantity {
		// Part of the position survived; shrink it and go back to OPEN so
		// the next cycle can finish the job.
		pos.Quantity -= attempt.FilledQuantity
		pos.Status = domain.PositionOpen
		if err := m.store.Upsert(ctx, pos); err != nil {
			return domain.Decision{}, fmt.Errorf("decision: settle partial close: %w", err)
		}
		d.Reason = "partial close"
	} else {
		now := time.Now().UTC()
		pos.Status = domain.PositionClosed
		pos.Quantity = 0
		pos.ClosedAt = &now
		if err := m.store.Upsert(ctx, pos); err != nil {
			return domain.Decision{}, fmt.Errorf("decision: settle close: %w", err)
		}
	}

	m.events.DecisionMade(ctx, d)
	m.logger.InfoContext(ctx, "position closed",
		slog.String("instrument", pos.Instrument),
		slog.String("reason", d.Reason),
		slog.Float64("fill_price", attempt.AvgFillPrice),
	)
	return d, nil
}

// executeAdjust grows or shrinks an open position toward the target
// quantity. The position stays OPEN throughout; the lock serializes against
// concurrent cycles.
func (m *Maker) executeAdjust(ctx context.Context, d domain.Decision, pos domain.Position, targetQty, price float64) (domain.Decision, error) {
	delta := targetQty - pos.Quantity
	if delta == 0 {
		return hold(domain.ScoreInput{Instrument: d.Instrument, Score: d.Score}, "already at target"), nil
	}

	var side domain.OrderSide
	if delta > 0 {
		side = openingSide(pos.Side)
	} else {
		side = closingSide(pos.Side)
	}

	attempt, err := m.execute(ctx, domain.OrderRequest{
		Instrument: pos.Instrument,
		Side:       side,
		Quantity:   math.Abs(delta),
		Type:       domain.OrderTypeMarket,
		ClientRef:  uuid.NewString(),
	}, m.trackRef(ctx, &pos))
	if err != nil {
		// The position itself is intact; record the failure but leave it OPEN.
		m.events.ExecutionFailed(ctx, pos.Instrument, attempt, err.Error())
		return domain.Decision{}, fmt.Errorf("decision: adjust %s: %w", pos.Instrument, err)
	}

	pos.PendingOrderRef = ""
	if delta > 0 {
		fillPrice := attempt.AvgFillPrice
		if fillPrice <= 0 {
			fillPrice = price
		}
		total := pos.Quantity + attempt.FilledQuantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + fillPrice*attempt.FilledQuantity) / total
		pos.Quantity = total
	} else {
		pos.Quantity -= attempt.FilledQuantity
		if pos.Quantity <= 0 {
			now := time.Now().UTC()
			pos.Status = domain.PositionClosed
			pos.Quantity = 0
			pos.ClosedAt = &now
		}
	}
	if err := m.store.Upsert(ctx, pos); err != nil {
		return domain.Decision{}, fmt.Errorf("decision: settle adjust: %w", err)
	}

	d.TargetQuantity = targetQty
	m.events.DecisionMade(ctx, d)
	return d, nil
}

// executeExit carries out a risk engine instruction: a full close or a
// partial profit take.
func (m *Maker) executeExit(ctx context.Context, in domain.ScoreInput, pos domain.Position, exit domain.ExitInstruction) (domain.Decision, error) {
	m.logger.InfoContext(ctx, "risk exit triggered",
		slog.String("instrument", pos.Instrument),
		slog.String("kind", string(exit.Kind)),
		slog.String("reason", exit.Reason),
		slog.Float64("price", exit.Price),
	)

	if exit.Kind == domain.ExitFull {
		d := decided(in, domain.ActionClose, pos.Quantity, exit.Reason)
		return m.executeClose(ctx, d, pos)
	}

	qty := pos.Quantity * exit.Fraction
	attempt, err := m.execute(ctx, domain.OrderRequest{
		Instrument: pos.Instrument,
		Side:       closingSide(pos.Side),
		Quantity:   qty,
		Type:       domain.OrderTypeMarket,
		ClientRef:  uuid.NewString(),
	}, m.trackRef(ctx, &pos))
	if err != nil {
		m.events.ExecutionFailed(ctx, pos.Instrument, attempt, err.Error())
		return domain.Decision{}, fmt.Errorf("decision: partial exit %s: %w", pos.Instrument, err)
	}

	pos.PendingOrderRef = ""
	pos.Quantity -= attempt.FilledQuantity
	if pos.Quantity <= 0 {
		now := time.Now().UTC()
		pos.Status = domain.PositionClosed
		pos.Quantity = 0
		pos.ClosedAt = &now
	}
	if err := m.store.Upsert(ctx, pos); err != nil {
		return domain.Decision{}, fmt.Errorf("decision: settle partial exit: %w", err)
	}

	d := decided(in, domain.ActionAdjust, pos.Quantity, exit.Reason)
	m.events.DecisionMade(ctx, d)
	return d, nil
}

// execute submits an order and confirms its fill, retrying transient
// failures with exponential backoff up to the attempt budget. A definitive
// exchange rejection aborts immediately. The returned attempt always
// reflects the last pass, including on error. submitted, when non-nil, is
// called with the order ref as soon as the submission is accepted.
func (m *Maker) execute(ctx context.Context, req domain.OrderRequest, submitted func(ref string)) (domain.ExecutionAttempt, error) {
	attempt := domain.ExecutionAttempt{RequestedQuantity: req.Quantity}

	var lastErr error
	for n := 1; n <= m.cfg.MaxRetryAttempts; n++ {
		attempt.AttemptCount = n
		if n > 1 {
			backoff := m.cfg.RetryBackoffBase << (n - 2)
			m.logger.DebugContext(ctx, "retrying order",
				slog.String("instrument", req.Instrument),
				slog.Int("attempt", n),
				slog.Duration("backoff", backoff),
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				attempt.Outcome = domain.AttemptFailed
				return attempt, err
			}
		}

		ref, err := m.gateway.SubmitOrder(ctx, req)
		if err != nil {
			if domain.IsRejected(err) {
				attempt.Outcome = domain.AttemptFailed
				return attempt, err
			}
			if domain.IsTransient(err) {
				lastErr = err
				continue
			}
			attempt.Outcome = domain.AttemptFailed
			return attempt, err
		}
		attempt.OrderRef = ref
		if submitted != nil {
			submitted(ref)
		}

		state, err := m.confirm(ctx, ref)
		if err != nil {
			if domain.IsRejected(err) {
				attempt.Outcome = domain.AttemptFailed
				return attempt, err
			}
			lastErr = err
			continue
		}

		attempt.FilledQuantity = state.FilledQuantity
		attempt.AvgFillPrice = state.AvgFillPrice
		switch {
		case state.Status == domain.OrderStatusFilled:
			attempt.Outcome = domain.AttemptConfirmed
			return attempt, nil
		case state.FilledQuantity > 0:
			attempt.Outcome = domain.AttemptPartial
			return attempt, nil
		default:
			lastErr = domain.Transient("confirm", fmt.Errorf("order %s ended %s unfilled", ref, state.Status))
		}
	}

	attempt.Outcome = domain.AttemptTimedOut
	if lastErr == nil {
		lastErr = domain.Transient("execute", errors.New("retry budget exhausted"))
	}
	return attempt, lastErr
}

// confirm polls the order until it reaches a terminal status or the
// per-attempt confirmation window runs out. An order that cannot be
// confirmed is never just walked away from: every non-terminal outcome
// (timeout or an unrecoverable status read) goes through abortOrder, so the
// retry loop may not submit again while this order could still be live.
func (m *Maker) confirm(ctx context.Context, ref string) (domain.OrderState, error) {
	deadline := time.Now().Add(m.cfg.ConfirmTimeout)
	for {
		state, err := m.gateway.GetOrderStatus(ctx, ref)
		if err != nil {
			if domain.IsTransient(err) && time.Now().Before(deadline) {
				if serr := sleepCtx(ctx, m.cfg.ConfirmPollInterval); serr != nil {
					return domain.OrderState{}, serr
				}
				continue
			}
			return m.abortOrder(ctx, ref, err)
		}

		if state.Status == domain.OrderStatusRejected {
			return state, domain.Rejected("confirm", fmt.Errorf("order %s rejected by exchange", ref))
		}
		if state.Status.Terminal() {
			return state, nil
		}

		if !time.Now().Before(deadline) {
			return m.abortOrder(ctx, ref, nil)
		}

		if err := sleepCtx(ctx, m.cfg.ConfirmPollInterval); err != nil {
			return domain.OrderState{}, err
		}
	}
}

// abortOrder cancels an unconfirmed order and re-reads its final state; the
// cancel may have raced a fill, so the final read is what counts. When that
// read fails too, cause (or the read error) is returned and the order is at
// worst cancelled, never left live behind a resubmission.
func (m *Maker) abortOrder(ctx context.Context, ref string, cause error) (domain.OrderState, error) {
	if _, err := m.gateway.CancelOrder(ctx, ref); err != nil {
		m.logger.WarnContext(ctx, "cancel of unconfirmed order failed",
			slog.String("order_ref", ref),
			slog.String("error", err.Error()),
		)
	}
	state, err := m.gateway.GetOrderStatus(ctx, ref)
	if err != nil {
		if cause == nil {
			cause = err
		}
		return domain.OrderState{}, cause
	}
	return state, nil
}

// trackRef returns a submission callback that persists the in-flight order
// ref on the position record, so a crash between submit and confirmation
// leaves reconciliation a link back to the order.
func (m *Maker) trackRef(ctx context.Context, pos *domain.Position) func(string) {
	return func(ref string) {
		pos.PendingOrderRef = ref
		if err := m.store.Upsert(ctx, *pos); err != nil {
			m.logger.WarnContext(ctx, "persist pending order ref failed",
				slog.String("instrument", pos.Instrument),
				slog.String("order_ref", ref),
				slog.String("error", err.Error()),
			)
		}
	}
}

// abandon marks the in-flight position FAILED and records the execution
// failure. Reconciliation later repairs the record from exchange truth.
func (m *Maker) abandon(ctx context.Context, instrument string, from domain.PositionStatus, attempt domain.ExecutionAttempt, cause error) {
	if err := m.store.Transition(ctx, instrument, from, domain.PositionFailed); err != nil {
		m.logger.ErrorContext(ctx, "failed to mark position FAILED",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
	}
	m.events.ExecutionFailed(ctx, instrument, attempt, cause.Error())
}

// Protect sets the fixed stop and the take-profit ladder from the position's
// entry price. Reconciliation uses it to arm adopted positions.
func (m *Maker) Protect(pos *domain.Position) {
	entry := pos.EntryPrice
	if entry <= 0 {
		return
	}
	if m.cfg.StopLossPercent > 0 {
		offset := entry * m.cfg.StopLossPercent / 100
		if pos.Side == domain.SideShort {
			pos.StopLoss = entry + offset
		} else {
			pos.StopLoss = entry - offset
		}
	}
	pos.TakeProfits = pos.TakeProfits[:0]
	for _, pt := range m.cfg.ProfitTakes {
		offset := entry * pt.GainPercent / 100
		price := entry + offset
		if pos.Side == domain.SideShort {
			price = entry - offset
		}
		pos.TakeProfits = append(pos.TakeProfits, domain.TakeProfitLevel{
			Price:    price,
			Fraction: pt.Fraction,
		})
	}
}

func openingSide(side domain.Side) domain.OrderSide {
	if side == domain.SideShort {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

func closingSide(side domain.Side) domain.OrderSide {
	if side == domain.SideShort {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

func hold(in domain.ScoreInput, reason string) domain.Decision {
	return decided(in, domain.ActionHold, 0, reason)
}

func decided(in domain.ScoreInput, action domain.Action, qty float64, reason string) domain.Decision {
	return domain.Decision{
		Instrument:     in.Instrument,
		Action:         action,
		Score:          in.Score,
		TargetQuantity: qty,
		Reason:         reason,
		DecidedAt:      time.Now().UTC(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
