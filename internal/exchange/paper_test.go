package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/store/memory"
)

func newPaper(t *testing.T) (*Paper, *memory.PriceCache) {
	t.Helper()
	prices := memory.NewPriceCache()
	return NewPaper(prices, 10000, slog.New(slog.NewTextHandler(io.Discard, nil))), prices
}

func TestPaperFillsAtCachedPrice(t *testing.T) {
	ctx := context.Background()
	paper, prices := newPaper(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 50000, time.Now()))

	ref, err := paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "BTCUSDT",
		Side:       domain.OrderSideBuy,
		Quantity:   0.5,
		Type:       domain.OrderTypeMarket,
	})
	require.NoError(t, err)

	state, err := paper.GetOrderStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, state.Status)
	assert.Equal(t, 0.5, state.FilledQuantity)
	assert.Equal(t, 50000.0, state.AvgFillPrice)

	positions, err := paper.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SideLong, positions[0].Side)
	assert.Equal(t, 0.5, positions[0].Quantity)
}

func TestPaperSellFlattensLong(t *testing.T) {
	ctx := context.Background()
	paper, prices := newPaper(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 50000, time.Now()))

	_, err := paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "BTCUSDT", Side: domain.OrderSideBuy, Quantity: 1,
	})
	require.NoError(t, err)

	_, err = paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "BTCUSDT", Side: domain.OrderSideSell, Quantity: 1,
	})
	require.NoError(t, err)

	positions, err := paper.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperSellPastFlatOpensShort(t *testing.T) {
	ctx := context.Background()
	paper, prices := newPaper(t)
	require.NoError(t, prices.SetPrice(ctx, "ETHUSDT", 3000, time.Now()))

	_, err := paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "ETHUSDT", Side: domain.OrderSideSell, Quantity: 2,
	})
	require.NoError(t, err)

	positions, err := paper.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SideShort, positions[0].Side)
	assert.Equal(t, 2.0, positions[0].Quantity)
	assert.Equal(t, 3000.0, positions[0].EntryPrice)
}

func TestPaperRejectsWithoutPrice(t *testing.T) {
	ctx := context.Background()
	paper, _ := newPaper(t)

	_, err := paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "XRPUSDT", Side: domain.OrderSideBuy, Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))

	_, err = paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "XRPUSDT", Side: domain.OrderSideBuy, Quantity: 0,
	})
	assert.True(t, domain.IsRejected(err))
}

func TestPaperEquityAndOrderHistory(t *testing.T) {
	ctx := context.Background()
	paper, prices := newPaper(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 50000, time.Now()))

	equity, err := paper.Equity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, equity)

	before := time.Now().Add(-time.Minute)
	_, err = paper.SubmitOrder(ctx, domain.OrderRequest{
		Instrument: "BTCUSDT", Side: domain.OrderSideBuy, Quantity: 0.1,
	})
	require.NoError(t, err)

	orders, err := paper.ListOrders(ctx, before)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orders, err = paper.ListOrders(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, orders)
}
