// Package allocation converts a score into a target trade size. The sizing
// function is pure: identical inputs always produce the identical quantity,
// which keeps it testable and lets past decisions be re-evaluated offline.
package allocation

import "math"

// Config holds the sizing parameters. All percent values are expressed as
// percents of account equity (5.0 means 5%).
type Config struct {
	MinScore        float64 // scores below this magnitude produce no trade
	BuyThreshold    float64 // positive score magnitude at which sizing saturates
	SellThreshold   float64 // negative counterpart of BuyThreshold
	MaxPercent      float64 // per-position notional cap
	MaxTotalPercent float64 // ceiling on notional summed across positions
	MinNotional     float64 // allocations below this are dropped
}

// AccountState is the account snapshot a sizing decision is based on.
type AccountState struct {
	Equity           float64
	ExistingExposure float64 // total open notional across all instruments
	Price            float64 // current price of the instrument being sized
}

// Sizer computes target quantities from scores.
type Sizer struct {
	cfg Config
}

// New creates a Sizer with the given parameters.
func New(cfg Config) Sizer {
	return Sizer{cfg: cfg}
}

// Size returns the target quantity for the given score and account state.
// The notional grows linearly with the score's magnitude relative to its
// direction threshold and is capped at MaxPercent of equity; the global
// exposure ceiling and the minimum order notional are applied on top. A zero
// return means no trade.
func (s Sizer) Size(score float64, st AccountState) float64 {
	mag := math.Abs(score)
	if mag < s.cfg.MinScore {
		return 0
	}
	if st.Equity <= 0 || st.Price <= 0 {
		return 0
	}

	threshold := s.cfg.BuyThreshold
	if score < 0 {
		threshold = math.Abs(s.cfg.SellThreshold)
	}
	if threshold <= 0 {
		return 0
	}

	cap := st.Equity * s.cfg.MaxPercent / 100
	notional := cap * mag / threshold
	if notional > cap {
		notional = cap
	}

	ceiling := st.Equity*s.cfg.MaxTotalPercent/100 - st.ExistingExposure
	if ceiling <= 0 {
		return 0
	}
	if notional > ceiling {
		notional = ceiling
	}

	if notional < s.cfg.MinNotional {
		return 0
	}

	return notional / st.Price
}
