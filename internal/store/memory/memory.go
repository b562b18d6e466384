// Package memory provides in-process implementations of the store
// interfaces. Monitor mode runs on them when no database is configured, and
// the test suites use them as lightweight fakes with real semantics.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avelichko/scorebot/internal/domain"
)

// PositionStore keeps positions in a map guarded by a mutex. It enforces the
// same single-live-position and optimistic-transition semantics as the
// PostgreSQL store.
type PositionStore struct {
	mu   sync.Mutex
	byID map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{byID: make(map[string]domain.Position)}
}

func (s *PositionStore) live(instrument string) (domain.Position, bool) {
	for _, p := range s.byID {
		if p.Instrument == instrument && p.Live() {
			return p, true
		}
	}
	return domain.Position{}, false
}

// Get returns the live position for an instrument.
func (s *PositionStore) Get(_ context.Context, instrument string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live(instrument)
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return clonePosition(p), nil
}

// Upsert inserts or replaces the position record for its ID.
func (s *PositionStore) Upsert(_ context.Context, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.Live() {
		if existing, ok := s.live(pos.Instrument); ok && existing.ID != pos.ID {
			return domain.ErrPositionExists
		}
	}
	s.byID[pos.ID] = clonePosition(pos)
	return nil
}

// ListOpen returns every live position.
func (s *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.byID {
		if p.Live() {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

// Transition moves the instrument's live position between statuses.
func (s *PositionStore) Transition(_ context.Context, instrument string, from, to domain.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live(instrument)
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrStateConflict
	}
	p.Status = to
	s.byID[p.ID] = p
	return nil
}

func clonePosition(p domain.Position) domain.Position {
	if p.TakeProfits != nil {
		tps := make([]domain.TakeProfitLevel, len(p.TakeProfits))
		copy(tps, p.TakeProfits)
		p.TakeProfits = tps
	}
	if p.ClosedAt != nil {
		closed := *p.ClosedAt
		p.ClosedAt = &closed
	}
	return p
}

// AuditStore keeps audit entries in an append-only slice.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := make(map[string]any, len(detail))
	for k, v := range detail {
		d[k] = v
	}
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    d,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns the most recent entries, newest first.
func (s *AuditStore) List(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	n := len(s.entries)
	if limit > n {
		limit = n
	}
	out := make([]domain.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// LockManager provides in-process per-key locks with the same contract as
// the Redis lock: Acquire fails fast with ErrLockHeld.
type LockManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]struct{})}
}

// Acquire takes the key or fails with domain.ErrLockHeld. The TTL is ignored
// for in-process locks; the unlock function releases the key.
func (l *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type pricePoint struct {
	price float64
	ts    time.Time
}

// PriceCache keeps the latest price per instrument in memory.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

// SetPrice records the latest price for an instrument.
func (c *PriceCache) SetPrice(_ context.Context, instrument string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[instrument] = pricePoint{price: price, ts: ts}
	return nil
}

// GetPrice returns the latest price and its timestamp for an instrument.
func (c *PriceCache) GetPrice(_ context.Context, instrument string) (float64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[instrument]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

// GetPrices returns the latest prices for the given instruments. Missing
// instruments are omitted.
func (c *PriceCache) GetPrices(_ context.Context, instruments []string) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(instruments))
	for _, in := range instruments {
		if p, ok := c.prices[in]; ok {
			out[in] = p.price
		}
	}
	return out, nil
}

var (
	_ domain.PositionStore = (*PositionStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
	_ domain.LockManager   = (*LockManager)(nil)
	_ domain.PriceCache    = (*PriceCache)(nil)
)
