package domain

import (
	"context"
	"time"
)

// PositionStore is the single source of local truth for positions. Every
// mutation is persisted before it becomes visible to readers.
type PositionStore interface {
	// Get returns the live position for an instrument, or ErrNotFound when
	// the instrument is flat.
	Get(ctx context.Context, instrument string) (Position, error)
	// Upsert atomically inserts or replaces the position record for its
	// instrument. Inserting a second live position for the same instrument
	// fails with ErrPositionExists.
	Upsert(ctx context.Context, pos Position) error
	// ListOpen returns every live position.
	ListOpen(ctx context.Context) ([]Position, error)
	// Transition moves the instrument's live position from one status to
	// another. It fails with ErrStateConflict when the current status does
	// not match from, which serializes concurrent orchestration attempts.
	Transition(ctx context.Context, instrument string, from, to PositionStatus) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of decisions, executions and
// reconciliation corrections.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

// LockManager provides per-instrument mutual exclusion between DecisionMaker
// runs and reconciliation corrections.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when
	// another holder owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PriceCache stores the latest observed price per instrument together with
// its update timestamp so stale ticks can be discarded.
type PriceCache interface {
	SetPrice(ctx context.Context, instrument string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, instrument string) (float64, time.Time, error)
	GetPrices(ctx context.Context, instruments []string) (map[string]float64, error)
}

// StreamMessage is a single entry read from the event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries structured pipeline events (DecisionMade,
// ExecutionFailed, PositionReconciled) to external consumers.
type SignalBus interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
