package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/scorebot/internal/domain"
)

func newTestEngine() *Engine {
	return New(Config{
		TrailingStopPercent:     1.5,
		MinProfitToTrailPercent: 2.0,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func openLong(entry float64) domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Instrument: "BTCUSDT",
		Side:       domain.SideLong,
		EntryPrice: entry,
		Quantity:   1,
		Status:     domain.PositionOpen,
	}
}

func TestEvaluateStopLoss(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	pos := openLong(100)
	pos.StopLoss = 95

	t.Run("above the stop keeps the position", func(t *testing.T) {
		_, exit, err := e.Evaluate(pos, 96, now)
		require.NoError(t, err)
		assert.Nil(t, exit)
	})

	t.Run("breach closes in full", func(t *testing.T) {
		_, exit, err := e.Evaluate(pos, 94, now)
		require.NoError(t, err)
		require.NotNil(t, exit)
		assert.Equal(t, domain.ExitFull, exit.Kind)
		assert.Equal(t, 1.0, exit.Fraction)
		assert.Equal(t, "stop_loss", exit.Reason)
	})

	t.Run("short breaches upward", func(t *testing.T) {
		short := openLong(100)
		short.Side = domain.SideShort
		short.StopLoss = 105
		_, exit, err := e.Evaluate(short, 106, now)
		require.NoError(t, err)
		require.NotNil(t, exit)
		assert.Equal(t, "stop_loss", exit.Reason)
	})
}

func TestEvaluateStalePrice(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	pos := openLong(100)
	pos.LastPriceAt = now

	same, exit, err := e.Evaluate(pos, 50, now.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrStalePrice)
	assert.Nil(t, exit)
	assert.Equal(t, pos, same)
}

func TestEvaluateTrailingStop(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	pos := openLong(100)

	// Below the 2% arming threshold nothing happens.
	pos, exit, err := e.Evaluate(pos, 101, base)
	require.NoError(t, err)
	assert.Nil(t, exit)
	assert.False(t, pos.Trailing.Armed)

	// 3% gain arms the stop 1.5% behind the extreme.
	pos, exit, err = e.Evaluate(pos, 103, base.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, exit)
	require.True(t, pos.Trailing.Armed)
	assert.InDelta(t, 103*0.985, pos.Trailing.EffectiveStop, 1e-9)

	// New extreme ratchets the stop up.
	pos, _, err = e.Evaluate(pos, 105, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 105*0.985, pos.Trailing.EffectiveStop, 1e-9)

	// A pullback that stays above the stop never lowers it.
	before := pos.Trailing.EffectiveStop
	pos, exit, err = e.Evaluate(pos, 104, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Nil(t, exit)
	assert.Equal(t, before, pos.Trailing.EffectiveStop)

	// Falling through the stop exits in full.
	_, exit, err = e.Evaluate(pos, 103.3, base.Add(4*time.Second))
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, domain.ExitFull, exit.Kind)
	assert.Equal(t, "trailing_stop", exit.Reason)
}

func TestEvaluateTakeProfits(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	pos := openLong(100)
	pos.TakeProfits = []domain.TakeProfitLevel{
		{Price: 102, Fraction: 0.3},
		{Price: 105, Fraction: 0.5},
	}

	t.Run("first crossed level fires once", func(t *testing.T) {
		var exit *domain.ExitInstruction
		var err error
		pos, exit, err = e.Evaluate(pos, 102.5, base)
		require.NoError(t, err)
		require.NotNil(t, exit)
		assert.Equal(t, domain.ExitPartial, exit.Kind)
		assert.InDelta(t, 0.3, exit.Fraction, 1e-9)
		assert.True(t, pos.TakeProfits[0].Triggered)
		assert.False(t, pos.TakeProfits[1].Triggered)
	})

	t.Run("consumed level stays silent", func(t *testing.T) {
		var exit *domain.ExitInstruction
		var err error
		pos, exit, err = e.Evaluate(pos, 103, base.Add(time.Second))
		require.NoError(t, err)
		assert.Nil(t, exit)
	})

	t.Run("next level fires on its own update", func(t *testing.T) {
		// 105.5 stays above the armed trailing stop (~104), so the partial
		// still fires.
		pos2, exit, err := e.Evaluate(pos, 105.5, base.Add(2*time.Second))
		require.NoError(t, err)
		require.NotNil(t, exit)
		assert.Equal(t, domain.ExitPartial, exit.Kind)
		assert.InDelta(t, 0.5, exit.Fraction, 1e-9)
		assert.True(t, pos2.TakeProfits[1].Triggered)
	})
}

func TestEvaluateStopBeatsTakeProfit(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	pos := openLong(100)
	pos.TakeProfits = []domain.TakeProfitLevel{{Price: 102, Fraction: 0.3}}
	pos.Trailing = domain.TrailingStop{
		Distance:      0.015,
		Armed:         true,
		Extreme:       105,
		EffectiveStop: 103,
	}

	// 102.5 is beyond both the trailing stop and the take-profit level; the
	// full close wins and the level is left for reconciliation of a larger
	// position, not consumed.
	updated, exit, err := e.Evaluate(pos, 102.5, now)
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, domain.ExitFull, exit.Kind)
	assert.Equal(t, "trailing_stop", exit.Reason)
	assert.False(t, updated.TakeProfits[0].Triggered)
}

func TestEvaluateIgnoresNonOpenPositions(t *testing.T) {
	e := newTestEngine()

	pos := openLong(100)
	pos.Status = domain.PositionPendingClose
	pos.StopLoss = 95

	same, exit, err := e.Evaluate(pos, 90, time.Now())
	require.NoError(t, err)
	assert.Nil(t, exit)
	assert.Equal(t, pos, same)
}
