package trader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/scorebot/internal/allocation"
	"github.com/avelichko/scorebot/internal/decision"
	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/notify"
	"github.com/avelichko/scorebot/internal/risk"
	"github.com/avelichko/scorebot/internal/store/memory"
)

type instantGateway struct {
	mu     sync.Mutex
	next   int
	orders map[string]domain.OrderState
}

func (g *instantGateway) SubmitOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orders == nil {
		g.orders = make(map[string]domain.OrderState)
	}
	g.next++
	ref := fmt.Sprintf("ord-%d", g.next)
	g.orders[ref] = domain.OrderState{
		OrderRef:       ref,
		Instrument:     req.Instrument,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: req.Quantity,
		AvgFillPrice:   100,
		UpdatedAt:      time.Now(),
	}
	return ref, nil
}

func (g *instantGateway) GetOrderStatus(_ context.Context, ref string) (domain.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orders[ref], nil
}

func (g *instantGateway) CancelOrder(context.Context, string) (bool, error) { return false, nil }

type staticAccount float64

func (a staticAccount) Equity(context.Context) (float64, error) { return float64(a), nil }

func newTestMaker(t *testing.T, store domain.PositionStore, prices domain.PriceCache) *decision.Maker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return decision.New(decision.Config{
		BuyThreshold:         0.6,
		SellThreshold:        -0.45,
		HoldTolerancePercent: 1.0,
		StopLossPercent:      5.0,
		MaxRetryAttempts:     3,
		RetryBackoffBase:     time.Millisecond,
		ConfirmTimeout:       100 * time.Millisecond,
		ConfirmPollInterval:  time.Millisecond,
		LockTTL:              time.Minute,
	},
		store,
		allocation.New(allocation.Config{
			MinScore:        0.45,
			BuyThreshold:    0.6,
			SellThreshold:   -0.45,
			MaxPercent:      5.0,
			MaxTotalPercent: 25.0,
			MinNotional:     10.0,
		}),
		risk.New(risk.Config{TrailingStopPercent: 1.5, MinProfitToTrailPercent: 2.0}, logger),
		&instantGateway{},
		staticAccount(10000),
		prices,
		memory.NewLockManager(),
		notify.NewEvents(nil, memory.NewAuditStore(), nil, logger),
		logger,
	)
}

func TestEngineDrainsInputAndStops(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPositionStore()
	prices := memory.NewPriceCache()
	now := time.Now()
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 100, now))
	require.NoError(t, prices.SetPrice(ctx, "ETHUSDT", 100, now))

	in := make(chan domain.ScoreInput, 4)
	in <- domain.ScoreInput{Instrument: "BTCUSDT", Score: 0.82, Timestamp: now}
	in <- domain.ScoreInput{Instrument: "ETHUSDT", Score: -0.5, Timestamp: now}
	in <- domain.ScoreInput{Instrument: "BTCUSDT", Score: 0.5, Timestamp: now}
	close(in)

	engine := New(Config{Workers: 2, SweepInterval: time.Hour},
		newTestMaker(t, store, prices), in, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after input drained")
	}

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.NewPositionStore()
	prices := memory.NewPriceCache()

	in := make(chan domain.ScoreInput)
	engine := New(Config{Workers: 1, SweepInterval: time.Hour},
		newTestMaker(t, store, prices), in, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}
