// Package risk evaluates open positions against their protective rules:
// fixed stop-loss, one-shot take-profit levels, and a trailing stop that
// follows favorable price movement but never retreats.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/avelichko/scorebot/internal/domain"
)

// Config holds the trailing-stop parameters. Percent values are relative to
// the entry price (1.5 means 1.5%).
type Config struct {
	TrailingStopPercent     float64
	MinProfitToTrailPercent float64
}

// Engine applies price updates to positions and emits exit instructions.
// It never performs I/O; callers persist the returned position state.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine with the given parameters.
func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_engine")),
	}
}

// Evaluate applies one price update to a position. It returns the updated
// position (advanced trailing state, consumed take-profit levels, last price
// timestamp) and an exit instruction when a rule fired, or nil when the
// position should be kept.
//
// Price updates must arrive with non-decreasing timestamps; an update older
// than the last applied one is rejected with domain.ErrStalePrice and the
// position is returned unchanged.
//
// A breached stop (fixed or trailing) always produces a full close and takes
// priority over any take-profit level hit on the same update.
func (e *Engine) Evaluate(pos domain.Position, price float64, ts time.Time) (domain.Position, *domain.ExitInstruction, error) {
	if pos.Status != domain.PositionOpen {
		return pos, nil, nil
	}
	if price <= 0 {
		return pos, nil, fmt.Errorf("risk: non-positive price %g for %s", price, pos.Instrument)
	}
	if !pos.LastPriceAt.IsZero() && ts.Before(pos.LastPriceAt) {
		return pos, nil, domain.ErrStalePrice
	}
	pos.LastPriceAt = ts

	e.advanceTrailing(&pos, price)

	if reason, breached := e.stopBreached(pos, price); breached {
		e.logger.Debug("protective stop breached",
			slog.String("instrument", pos.Instrument),
			slog.String("reason", reason),
			slog.Float64("price", price),
		)
		return pos, &domain.ExitInstruction{
			Kind:     domain.ExitFull,
			Fraction: 1,
			Reason:   reason,
			Price:    price,
		}, nil
	}

	// Take-profit levels are one-shot: the first untriggered level crossed
	// by this update fires and is consumed; later levels wait for their own
	// update.
	for i := range pos.TakeProfits {
		tp := &pos.TakeProfits[i]
		if tp.Triggered {
			continue
		}
		if !crossed(pos.Side, price, tp.Price) {
			continue
		}
		tp.Triggered = true
		return pos, &domain.ExitInstruction{
			Kind:     domain.ExitPartial,
			Fraction: tp.Fraction,
			Reason:   fmt.Sprintf("take_profit@%g", tp.Price),
			Price:    price,
		}, nil
	}

	return pos, nil, nil
}

// advanceTrailing arms the trailing stop once the minimum profit is reached
// and then ratchets the effective stop toward the price on every favorable
// extreme. The effective stop never moves against the position.
func (e *Engine) advanceTrailing(pos *domain.Position, price float64) {
	dist := pos.Trailing.Distance
	if dist <= 0 {
		dist = e.cfg.TrailingStopPercent / 100
		pos.Trailing.Distance = dist
	}
	if dist <= 0 || pos.EntryPrice <= 0 {
		return
	}

	if !pos.Trailing.Armed {
		gain := gainPercent(pos.Side, pos.EntryPrice, price)
		if gain < e.cfg.MinProfitToTrailPercent {
			return
		}
		pos.Trailing.Armed = true
		pos.Trailing.Extreme = price
		pos.Trailing.EffectiveStop = trailStop(pos.Side, price, dist)
		return
	}

	switch pos.Side {
	case domain.SideLong:
		if price > pos.Trailing.Extreme {
			pos.Trailing.Extreme = price
			if stop := trailStop(pos.Side, price, dist); stop > pos.Trailing.EffectiveStop {
				pos.Trailing.EffectiveStop = stop
			}
		}
	case domain.SideShort:
		if price < pos.Trailing.Extreme {
			pos.Trailing.Extreme = price
			if stop := trailStop(pos.Side, price, dist); stop < pos.Trailing.EffectiveStop {
				pos.Trailing.EffectiveStop = stop
			}
		}
	}
}

// stopBreached checks the fixed stop-loss and the armed trailing stop. The
// fixed stop reason wins when both are breached by the same update.
func (e *Engine) stopBreached(pos domain.Position, price float64) (string, bool) {
	if pos.StopLoss > 0 && crossedAdverse(pos.Side, price, pos.StopLoss) {
		return "stop_loss", true
	}
	if pos.Trailing.Armed && crossedAdverse(pos.Side, price, pos.Trailing.EffectiveStop) {
		return "trailing_stop", true
	}
	return "", false
}

// gainPercent returns the unrealized gain of the position in percent.
func gainPercent(side domain.Side, entry, price float64) float64 {
	switch side {
	case domain.SideShort:
		return (entry - price) / entry * 100
	default:
		return (price - entry) / entry * 100
	}
}

// trailStop computes the effective stop at the trailing distance from the
// extreme.
func trailStop(side domain.Side, extreme, dist float64) float64 {
	if side == domain.SideShort {
		return extreme * (1 + dist)
	}
	return extreme * (1 - dist)
}

// crossed reports whether price reached a favorable target level.
func crossed(side domain.Side, price, level float64) bool {
	if side == domain.SideShort {
		return price <= level
	}
	return price >= level
}

// crossedAdverse reports whether price reached an adverse stop level.
func crossedAdverse(side domain.Side, price, level float64) bool {
	if side == domain.SideShort {
		return price >= level
	}
	return price <= level
}
