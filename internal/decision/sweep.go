package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avelichko/scorebot/internal/domain"
)

// SweepRisk applies the latest cached price to every open position so
// protective stops fire even when no fresh score arrives for the
// instrument. Locked instruments are skipped; their running cycle already
// evaluates risk.
func (m *Maker) SweepRisk(ctx context.Context) error {
	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("decision: sweep list open: %w", err)
	}

	for _, pos := range open {
		if pos.Status != domain.PositionOpen {
			continue
		}
		if err := m.sweepOne(ctx, pos); err != nil {
			m.logger.ErrorContext(ctx, "risk sweep failed",
				slog.String("instrument", pos.Instrument),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (m *Maker) sweepOne(ctx context.Context, pos domain.Position) error {
	unlock, err := m.locks.Acquire(ctx, "decision:"+pos.Instrument, m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer unlock()

	price, ts, err := m.prices.GetPrice(ctx, pos.Instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("price: %w", err)
	}

	updated, exit, err := m.risk.Evaluate(pos, price, ts)
	if err != nil {
		if errors.Is(err, domain.ErrStalePrice) {
			return nil
		}
		return fmt.Errorf("evaluate: %w", err)
	}

	if err := m.store.Upsert(ctx, updated); err != nil {
		return fmt.Errorf("persist risk state: %w", err)
	}
	if exit == nil {
		return nil
	}

	in := domain.ScoreInput{Instrument: pos.Instrument, Timestamp: ts}
	if _, err := m.executeExit(ctx, in, updated, *exit); err != nil {
		return err
	}
	return nil
}
