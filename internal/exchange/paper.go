// Package exchange provides execution gateway implementations. Paper is the
// simulated exchange used in monitor mode: orders fill instantly at the last
// cached price and nothing leaves the process.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/scorebot/internal/domain"
)

// Paper simulates an exchange in memory. It implements ExecutionGateway,
// ExchangeState and AccountInfo so the whole pipeline runs unchanged against
// it.
type Paper struct {
	prices domain.PriceCache
	logger *slog.Logger

	mu        sync.Mutex
	equity    float64
	orders    map[string]domain.OrderState
	positions map[string]domain.ExchangePosition
}

// NewPaper creates a paper exchange with the given starting equity. Fill
// prices come from the price cache.
func NewPaper(prices domain.PriceCache, equity float64, logger *slog.Logger) *Paper {
	return &Paper{
		prices:    prices,
		logger:    logger.With(slog.String("component", "paper_exchange")),
		equity:    equity,
		orders:    make(map[string]domain.OrderState),
		positions: make(map[string]domain.ExchangePosition),
	}
}

// SubmitOrder fills the order immediately at the last cached price.
func (p *Paper) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", domain.Rejected("submit", fmt.Errorf("non-positive quantity %g", req.Quantity))
	}
	price, _, err := p.prices.GetPrice(ctx, req.Instrument)
	if err != nil {
		return "", domain.Transient("submit", fmt.Errorf("no price for %s: %w", req.Instrument, err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ref := uuid.NewString()
	p.orders[ref] = domain.OrderState{
		OrderRef:       ref,
		Instrument:     req.Instrument,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: req.Quantity,
		AvgFillPrice:   price,
		UpdatedAt:      time.Now().UTC(),
	}
	p.applyFill(req, price)

	p.logger.DebugContext(ctx, "paper fill",
		slog.String("instrument", req.Instrument),
		slog.String("side", string(req.Side)),
		slog.Float64("quantity", req.Quantity),
		slog.Float64("price", price),
	)
	return ref, nil
}

// applyFill updates the simulated exchange position. Buys add long exposure
// (or reduce a short); sells do the opposite.
func (p *Paper) applyFill(req domain.OrderRequest, price float64) {
	pos, ok := p.positions[req.Instrument]
	signed := req.Quantity
	if req.Side == domain.OrderSideSell {
		signed = -signed
	}
	if !ok {
		side := domain.SideLong
		if signed < 0 {
			side = domain.SideShort
		}
		p.positions[req.Instrument] = domain.ExchangePosition{
			Instrument: req.Instrument,
			Side:       side,
			Quantity:   abs(signed),
			EntryPrice: price,
		}
		return
	}

	cur := pos.Quantity
	if pos.Side == domain.SideShort {
		cur = -cur
	}
	next := cur + signed
	switch {
	case next == 0:
		delete(p.positions, req.Instrument)
	case next > 0:
		if cur > 0 && next > cur {
			pos.EntryPrice = (pos.EntryPrice*cur + price*signed) / next
		} else if cur <= 0 {
			pos.EntryPrice = price
		}
		pos.Side = domain.SideLong
		pos.Quantity = next
		p.positions[req.Instrument] = pos
	default:
		if cur < 0 && next < cur {
			pos.EntryPrice = (pos.EntryPrice*(-cur) + price*(-signed)) / (-next)
		} else if cur >= 0 {
			pos.EntryPrice = price
		}
		pos.Side = domain.SideShort
		pos.Quantity = -next
		p.positions[req.Instrument] = pos
	}
}

// GetOrderStatus returns the recorded order state.
func (p *Paper) GetOrderStatus(_ context.Context, orderRef string) (domain.OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.orders[orderRef]
	if !ok {
		return domain.OrderState{}, domain.Rejected("status", fmt.Errorf("unknown order %s", orderRef))
	}
	return state, nil
}

// CancelOrder is a no-op: paper orders fill instantly, so there is never
// anything left to cancel.
func (p *Paper) CancelOrder(_ context.Context, orderRef string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderRef]; !ok {
		return false, domain.Rejected("cancel", fmt.Errorf("unknown order %s", orderRef))
	}
	return false, nil
}

// ListPositions returns the simulated open positions.
func (p *Paper) ListPositions(_ context.Context) ([]domain.ExchangePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ExchangePosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// ListOrders returns orders updated at or after since.
func (p *Paper) ListOrders(_ context.Context, since time.Time) ([]domain.OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OrderState
	for _, o := range p.orders {
		if !o.UpdatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Equity returns the paper account balance.
func (p *Paper) Equity(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var (
	_ domain.ExecutionGateway = (*Paper)(nil)
	_ domain.ExchangeState    = (*Paper)(nil)
	_ domain.AccountInfo      = (*Paper)(nil)
)
