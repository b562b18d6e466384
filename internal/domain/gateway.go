package domain

import (
	"context"
	"time"
)

// OrderSide indicates whether an order buys or sells the instrument.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style requested from the exchange.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the lifecycle of a submitted order as reported by the
// exchange.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderRequest is a single order submission.
type OrderRequest struct {
	Instrument string
	Side       OrderSide
	Quantity   float64
	Type       OrderType
	ClientRef  string // caller-supplied idempotency reference
}

// OrderState is the exchange's view of a submitted order.
type OrderState struct {
	OrderRef       string
	Instrument     string
	Status         OrderStatus
	FilledQuantity float64
	AvgFillPrice   float64
	UpdatedAt      time.Time
}

// ExecutionGateway submits and tracks orders. It is implemented by the
// low-level exchange client, which owns authentication and rate limiting.
// Failures are reported as *ExchangeError with a Transient or Rejected kind.
type ExecutionGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	GetOrderStatus(ctx context.Context, orderRef string) (OrderState, error)
	CancelOrder(ctx context.Context, orderRef string) (bool, error)
}

// ExchangePosition is the exchange's authoritative record of an open
// position, as returned by the state puller.
type ExchangePosition struct {
	Instrument string
	Side       Side
	Quantity   float64
	EntryPrice float64
}

// ExchangeState pulls the exchange's authoritative open positions and order
// history for reconciliation.
type ExchangeState interface {
	ListPositions(ctx context.Context) ([]ExchangePosition, error)
	ListOrders(ctx context.Context, since time.Time) ([]OrderState, error)
}

// AccountInfo reports the equity available for allocation.
type AccountInfo interface {
	Equity(ctx context.Context) (float64, error)
}
