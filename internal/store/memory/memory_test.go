package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/scorebot/internal/domain"
)

func newOpenPosition(id, instrument string) domain.Position {
	return domain.Position{
		ID:         id,
		Instrument: instrument,
		Side:       domain.SideLong,
		EntryPrice: 100,
		Quantity:   1,
		Status:     domain.PositionOpen,
	}
}

func TestPositionStoreSingleLivePosition(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	require.NoError(t, store.Upsert(ctx, newOpenPosition("a", "BTCUSDT")))

	t.Run("second live position is rejected", func(t *testing.T) {
		err := store.Upsert(ctx, newOpenPosition("b", "BTCUSDT"))
		assert.ErrorIs(t, err, domain.ErrPositionExists)
	})

	t.Run("same record can be replaced", func(t *testing.T) {
		p := newOpenPosition("a", "BTCUSDT")
		p.Quantity = 2
		require.NoError(t, store.Upsert(ctx, p))

		got, err := store.Get(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, 2.0, got.Quantity)
	})

	t.Run("closing frees the slot", func(t *testing.T) {
		p, err := store.Get(ctx, "BTCUSDT")
		require.NoError(t, err)
		now := time.Now()
		p.Status = domain.PositionClosed
		p.Quantity = 0
		p.ClosedAt = &now
		require.NoError(t, store.Upsert(ctx, p))

		_, err = store.Get(ctx, "BTCUSDT")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.Upsert(ctx, newOpenPosition("b", "BTCUSDT")))
	})
}

func TestPositionStoreTransition(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Upsert(ctx, newOpenPosition("a", "ETHUSDT")))

	t.Run("matching from succeeds", func(t *testing.T) {
		err := store.Transition(ctx, "ETHUSDT", domain.PositionOpen, domain.PositionPendingClose)
		require.NoError(t, err)

		got, err := store.Get(ctx, "ETHUSDT")
		require.NoError(t, err)
		assert.Equal(t, domain.PositionPendingClose, got.Status)
	})

	t.Run("mismatched from conflicts", func(t *testing.T) {
		err := store.Transition(ctx, "ETHUSDT", domain.PositionOpen, domain.PositionPendingClose)
		assert.ErrorIs(t, err, domain.ErrStateConflict)
	})

	t.Run("unknown instrument is not found", func(t *testing.T) {
		err := store.Transition(ctx, "XRPUSDT", domain.PositionOpen, domain.PositionFailed)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPositionStoreListOpenReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	pos := newOpenPosition("a", "BTCUSDT")
	pos.TakeProfits = []domain.TakeProfitLevel{{Price: 102, Fraction: 0.3}}
	require.NoError(t, store.Upsert(ctx, pos))

	listed, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	listed[0].TakeProfits[0].Triggered = true
	got, err := store.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, got.TakeProfits[0].Triggered)
}

func TestAuditStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()

	require.NoError(t, store.Log(ctx, "first", map[string]any{"n": 1}))
	require.NoError(t, store.Log(ctx, "second", map[string]any{"n": 2}))
	require.NoError(t, store.Log(ctx, "third", nil))

	entries, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Event)
	assert.Equal(t, "second", entries[1].Event)
}

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager()

	unlock, err := locks.Acquire(ctx, "decision:BTCUSDT", time.Minute)
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, "decision:BTCUSDT", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// Other keys are independent.
	unlock2, err := locks.Acquire(ctx, "decision:ETHUSDT", time.Minute)
	require.NoError(t, err)
	unlock2()

	unlock()
	unlock3, err := locks.Acquire(ctx, "decision:BTCUSDT", time.Minute)
	require.NoError(t, err)
	unlock3()
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	cache := NewPriceCache()
	now := time.Now()

	require.NoError(t, cache.SetPrice(ctx, "BTCUSDT", 50000, now))
	require.NoError(t, cache.SetPrice(ctx, "ETHUSDT", 3000, now))

	price, ts, err := cache.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, now, ts)

	_, _, err = cache.GetPrice(ctx, "XRPUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	prices, err := cache.GetPrices(ctx, []string{"BTCUSDT", "ETHUSDT", "XRPUSDT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}, prices)
}
