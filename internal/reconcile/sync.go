// Package reconcile periodically compares local position records against the
// exchange's authoritative state and repairs divergence. The exchange always
// wins: local records are overwritten, adopted or marked FAILED, never the
// other way around.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/notify"
)

// Config holds the reconciliation cadence and divergence tolerance.
type Config struct {
	Interval         time.Duration
	TolerancePercent float64
	LockTTL          time.Duration
}

// Sync runs the reconciliation loop. Each instrument is corrected under the
// same distributed lock the decision maker uses, so a correction never races
// an in-flight execution. protect, when non-nil, arms adopted positions with
// the same stop and take-profit rules a freshly opened one would get.
type Sync struct {
	cfg      Config
	store    domain.PositionStore
	exchange domain.ExchangeState
	locks    domain.LockManager
	events   *notify.Events
	protect  func(*domain.Position)
	logger   *slog.Logger
}

// New creates a Sync.
func New(
	cfg Config,
	store domain.PositionStore,
	exchange domain.ExchangeState,
	locks domain.LockManager,
	events *notify.Events,
	protect func(*domain.Position),
	logger *slog.Logger,
) *Sync {
	return &Sync{
		cfg:      cfg,
		store:    store,
		exchange: exchange,
		locks:    locks,
		events:   events,
		protect:  protect,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Run reconciles immediately and then on every interval tick until ctx is
// cancelled.
func (s *Sync) Run(ctx context.Context) error {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "reconciliation pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "reconciliation pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single reconciliation pass over every instrument known
// either locally or on the exchange. Locked instruments are skipped and
// picked up on the next pass.
func (s *Sync) RunOnce(ctx context.Context) error {
	remote, err := s.exchange.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list exchange positions: %w", err)
	}
	local, err := s.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list local positions: %w", err)
	}
	working, err := s.workingOrders(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list exchange orders: %w", err)
	}

	remoteByInstrument := make(map[string]domain.ExchangePosition, len(remote))
	for _, r := range remote {
		remoteByInstrument[r.Instrument] = r
	}
	localByInstrument := make(map[string]domain.Position, len(local))
	for _, l := range local {
		localByInstrument[l.Instrument] = l
	}

	instruments := make(map[string]struct{}, len(remote)+len(local))
	for in := range remoteByInstrument {
		instruments[in] = struct{}{}
	}
	for in := range localByInstrument {
		instruments[in] = struct{}{}
	}

	for instrument := range instruments {
		if working[instrument] {
			// An order is still working on the exchange; the position is
			// about to change, so any correction now would fight the fill.
			s.logger.DebugContext(ctx, "order in flight on exchange, deferring to next pass",
				slog.String("instrument", instrument))
			continue
		}
		if err := s.reconcileInstrument(ctx, instrument, localByInstrument, remoteByInstrument); err != nil {
			s.logger.ErrorContext(ctx, "instrument reconciliation failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// workingOrders returns the instruments that still have a non-terminal order
// on the exchange. The lookback window covers two passes so an order
// submitted right after the previous pass is not missed.
func (s *Sync) workingOrders(ctx context.Context) (map[string]bool, error) {
	since := time.Time{}
	if s.cfg.Interval > 0 {
		since = time.Now().Add(-2 * s.cfg.Interval)
	}
	orders, err := s.exchange.ListOrders(ctx, since)
	if err != nil {
		return nil, err
	}
	working := make(map[string]bool)
	for _, o := range orders {
		if !o.Status.Terminal() {
			working[o.Instrument] = true
		}
	}
	return working, nil
}

func (s *Sync) reconcileInstrument(
	ctx context.Context,
	instrument string,
	localByInstrument map[string]domain.Position,
	remoteByInstrument map[string]domain.ExchangePosition,
) error {
	unlock, err := s.locks.Acquire(ctx, "decision:"+instrument, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "instrument locked, deferring to next pass",
				slog.String("instrument", instrument))
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer unlock()

	localPos, hasLocal := localByInstrument[instrument]
	remotePos, hasRemote := remoteByInstrument[instrument]

	// PENDING records belong to an in-flight execution; let it finish.
	if hasLocal && localPos.Status != domain.PositionOpen {
		return nil
	}

	switch {
	case hasLocal && hasRemote:
		return s.repairDivergence(ctx, localPos, remotePos)
	case hasRemote:
		return s.adopt(ctx, remotePos)
	default:
		return s.markGone(ctx, localPos)
	}
}

// repairDivergence overwrites the local record from exchange truth when the
// side differs or the quantity or entry price diverges beyond tolerance.
func (s *Sync) repairDivergence(ctx context.Context, local domain.Position, remote domain.ExchangePosition) error {
	now := time.Now().UTC()
	diverged := local.Side != remote.Side ||
		relativeDiffPercent(local.Quantity, remote.Quantity) > s.cfg.TolerancePercent ||
		relativeDiffPercent(local.EntryPrice, remote.EntryPrice) > s.cfg.TolerancePercent

	if !diverged {
		local.LastSyncedAt = now
		return s.store.Upsert(ctx, local)
	}

	detail := map[string]any{
		"correction":      "overwrite",
		"local_side":      string(local.Side),
		"local_quantity":  local.Quantity,
		"local_entry":     local.EntryPrice,
		"remote_side":     string(remote.Side),
		"remote_quantity": remote.Quantity,
		"remote_entry":    remote.EntryPrice,
	}

	local.Side = remote.Side
	local.Quantity = remote.Quantity
	local.EntryPrice = remote.EntryPrice
	local.LastSyncedAt = now
	if err := s.store.Upsert(ctx, local); err != nil {
		return fmt.Errorf("overwrite %s: %w", local.Instrument, err)
	}

	s.logger.WarnContext(ctx, "local position overwritten from exchange",
		slog.String("instrument", local.Instrument),
		slog.Float64("local_quantity", detail["local_quantity"].(float64)),
		slog.Float64("remote_quantity", remote.Quantity),
	)
	s.events.PositionReconciled(ctx, local.Instrument, detail)
	return nil
}

// adopt creates a local OPEN record for a position only the exchange knows
// about, typically one whose execution was abandoned as FAILED after the
// order actually went through.
func (s *Sync) adopt(ctx context.Context, remote domain.ExchangePosition) error {
	now := time.Now().UTC()
	pos := domain.Position{
		ID:           uuid.NewString(),
		Instrument:   remote.Instrument,
		Side:         remote.Side,
		EntryPrice:   remote.EntryPrice,
		Quantity:     remote.Quantity,
		Status:       domain.PositionOpen,
		LastPriceAt:  now,
		OpenedAt:     now,
		LastSyncedAt: now,
	}
	if s.protect != nil {
		s.protect(&pos)
	}
	if err := s.store.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("adopt %s: %w", remote.Instrument, err)
	}

	s.logger.WarnContext(ctx, "exchange position adopted",
		slog.String("instrument", remote.Instrument),
		slog.Float64("quantity", remote.Quantity),
	)
	s.events.PositionReconciled(ctx, remote.Instrument, map[string]any{
		"correction": "adopt",
		"side":       string(remote.Side),
		"quantity":   remote.Quantity,
	})
	return nil
}

// markGone demotes a local OPEN position the exchange no longer reports. It
// is marked FAILED rather than CLOSED because no confirmed close fill backs
// it; the audit trail keeps the distinction visible.
func (s *Sync) markGone(ctx context.Context, local domain.Position) error {
	if err := s.store.Transition(ctx, local.Instrument, domain.PositionOpen, domain.PositionFailed); err != nil {
		return fmt.Errorf("mark gone %s: %w", local.Instrument, err)
	}

	s.logger.WarnContext(ctx, "local position missing on exchange, marked failed",
		slog.String("instrument", local.Instrument),
		slog.Float64("quantity", local.Quantity),
	)
	s.events.PositionReconciled(ctx, local.Instrument, map[string]any{
		"correction":     "mark_failed",
		"local_quantity": local.Quantity,
	})
	return nil
}

func relativeDiffPercent(a, b float64) float64 {
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return 0
	}
	return math.Abs(a-b) / base * 100
}
