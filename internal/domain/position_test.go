package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionValidate(t *testing.T) {
	valid := Position{
		ID:         "p1",
		Instrument: "BTCUSDT",
		Side:       SideLong,
		EntryPrice: 100,
		Quantity:   1,
		Status:     PositionOpen,
	}
	require.NoError(t, valid.Validate())

	t.Run("open position needs quantity", func(t *testing.T) {
		p := valid
		p.Quantity = 0
		assert.Error(t, p.Validate())
	})

	t.Run("closed position must be flat", func(t *testing.T) {
		p := valid
		p.Status = PositionClosed
		assert.Error(t, p.Validate())
		p.Quantity = 0
		assert.NoError(t, p.Validate())
	})

	t.Run("take profit fractions bounded", func(t *testing.T) {
		p := valid
		p.TakeProfits = []TakeProfitLevel{{Price: 102, Fraction: 0.6}, {Price: 105, Fraction: 0.6}}
		assert.Error(t, p.Validate())

		p.TakeProfits = []TakeProfitLevel{{Price: 102, Fraction: 0.3}, {Price: 105, Fraction: 0.5}}
		assert.NoError(t, p.Validate())
	})

	t.Run("instrument and side required", func(t *testing.T) {
		p := valid
		p.Instrument = ""
		assert.Error(t, p.Validate())

		p = valid
		p.Side = "sideways"
		assert.Error(t, p.Validate())
	})
}

func TestPositionLive(t *testing.T) {
	p := Position{Status: PositionPendingOpen}
	assert.True(t, p.Live())
	p.Status = PositionOpen
	assert.True(t, p.Live())
	p.Status = PositionPendingClose
	assert.True(t, p.Live())
	p.Status = PositionClosed
	assert.False(t, p.Live())
	p.Status = PositionFailed
	assert.False(t, p.Live())
}
