package domain

import (
	"fmt"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

// PositionStatus tracks the position lifecycle. PENDING_OPEN and PENDING_CLOSE
// mean an order is in flight; FAILED marks positions abandoned after the retry
// budget was exhausted or reconciliation found them gone on the exchange.
type PositionStatus string

const (
	PositionPendingOpen  PositionStatus = "PENDING_OPEN"
	PositionOpen         PositionStatus = "OPEN"
	PositionPendingClose PositionStatus = "PENDING_CLOSE"
	PositionClosed       PositionStatus = "CLOSED"
	PositionFailed       PositionStatus = "FAILED"
)

// TakeProfitLevel is a one-shot partial-close trigger attached to a position.
// Once Triggered it never fires again.
type TakeProfitLevel struct {
	Price     float64 `json:"price"`
	Fraction  float64 `json:"fraction"`
	Triggered bool    `json:"triggered"`
}

// TrailingStop holds the trailing-stop state for a position. Extreme is the
// most favorable price seen since the stop armed; EffectiveStop only ever
// moves in the position's favorable direction.
type TrailingStop struct {
	Distance      float64 `json:"distance"` // fraction of price, e.g. 0.015
	Armed         bool    `json:"armed"`
	Extreme       float64 `json:"extreme"`
	EffectiveStop float64 `json:"effective_stop"`
}

// Position is the durable record of one instrument's exposure. At most one
// position per instrument may be live (PENDING_OPEN, OPEN or PENDING_CLOSE)
// at any time; PositionStore enforces this.
type Position struct {
	ID              string
	Instrument      string
	Side            Side
	EntryPrice      float64
	Quantity        float64
	StopLoss        float64 // 0 disables the fixed stop
	TakeProfits     []TakeProfitLevel
	Trailing        TrailingStop
	Status          PositionStatus
	PendingOrderRef string
	LastPriceAt     time.Time // timestamp of the last applied price update
	OpenedAt        time.Time
	ClosedAt        *time.Time
	LastSyncedAt    time.Time
}

// Live reports whether the position occupies the instrument's single live slot.
func (p Position) Live() bool {
	switch p.Status {
	case PositionPendingOpen, PositionOpen, PositionPendingClose:
		return true
	default:
		return false
	}
}

// Notional returns the position's exposure at the given price.
func (p Position) Notional(price float64) float64 {
	return p.Quantity * price
}

// Validate checks the structural invariants of a position record.
func (p Position) Validate() error {
	if p.Instrument == "" {
		return fmt.Errorf("position: instrument must not be empty")
	}
	switch p.Side {
	case SideLong, SideShort, SideFlat:
	default:
		return fmt.Errorf("position: invalid side %q", p.Side)
	}
	switch p.Status {
	case PositionOpen, PositionPendingClose:
		if p.Quantity <= 0 {
			return fmt.Errorf("position: quantity must be > 0 in status %s, got %g", p.Status, p.Quantity)
		}
	case PositionClosed:
		if p.Quantity != 0 {
			return fmt.Errorf("position: quantity must be 0 when closed, got %g", p.Quantity)
		}
	case PositionPendingOpen, PositionFailed:
	default:
		return fmt.Errorf("position: invalid status %q", p.Status)
	}
	var sum float64
	for _, tp := range p.TakeProfits {
		if tp.Fraction <= 0 || tp.Fraction > 1 {
			return fmt.Errorf("position: take-profit fraction %g out of (0,1]", tp.Fraction)
		}
		sum += tp.Fraction
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("position: take-profit fractions sum to %g, must be <= 1", sum)
	}
	return nil
}
