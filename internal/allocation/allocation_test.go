package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		MinScore:        0.45,
		BuyThreshold:    0.6,
		SellThreshold:   -0.45,
		MaxPercent:      5.0,
		MaxTotalPercent: 25.0,
		MinNotional:     10.0,
	}
}

func TestSizerSize(t *testing.T) {
	sizer := New(testConfig())

	t.Run("below min score yields zero", func(t *testing.T) {
		qty := sizer.Size(0.3, AccountState{Equity: 10000, Price: 100})
		assert.Zero(t, qty)

		qty = sizer.Size(-0.3, AccountState{Equity: 10000, Price: 100})
		assert.Zero(t, qty)
	})

	t.Run("strong score saturates at per-position cap", func(t *testing.T) {
		// 5% of 10000 is a 500 cap; 0.82/0.6 would overshoot it.
		qty := sizer.Size(0.82, AccountState{Equity: 10000, Price: 100})
		assert.InDelta(t, 5.0, qty, 1e-9)
	})

	t.Run("score scales linearly up to the threshold", func(t *testing.T) {
		// 0.45/0.6 of the 500 cap = 375 notional.
		qty := sizer.Size(0.45, AccountState{Equity: 10000, Price: 100})
		assert.InDelta(t, 3.75, qty, 1e-9)
	})

	t.Run("negative score uses sell threshold", func(t *testing.T) {
		// |-0.45| equals the sell threshold magnitude, so notional = cap.
		qty := sizer.Size(-0.45, AccountState{Equity: 10000, Price: 100})
		assert.InDelta(t, 5.0, qty, 1e-9)
	})

	t.Run("global exposure ceiling trims the allocation", func(t *testing.T) {
		// Ceiling is 2500; existing 2200 leaves 300.
		qty := sizer.Size(0.82, AccountState{Equity: 10000, ExistingExposure: 2200, Price: 100})
		assert.InDelta(t, 3.0, qty, 1e-9)
	})

	t.Run("exhausted exposure yields zero", func(t *testing.T) {
		qty := sizer.Size(0.82, AccountState{Equity: 10000, ExistingExposure: 2600, Price: 100})
		assert.Zero(t, qty)
	})

	t.Run("dust allocation dropped by min notional", func(t *testing.T) {
		// Cap is 5 at 100 equity; below the 10 minimum.
		qty := sizer.Size(0.82, AccountState{Equity: 100, Price: 100})
		assert.Zero(t, qty)
	})

	t.Run("degenerate account state yields zero", func(t *testing.T) {
		assert.Zero(t, sizer.Size(0.82, AccountState{Equity: 0, Price: 100}))
		assert.Zero(t, sizer.Size(0.82, AccountState{Equity: 10000, Price: 0}))
	})

	t.Run("identical inputs produce identical output", func(t *testing.T) {
		st := AccountState{Equity: 10000, ExistingExposure: 400, Price: 123.45}
		assert.Equal(t, sizer.Size(0.7, st), sizer.Size(0.7, st))
	})
}
