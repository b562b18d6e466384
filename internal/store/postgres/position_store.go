package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichko/scorebot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. A partial
// unique index on (instrument) over live statuses enforces the single live
// position invariant at the database level.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, instrument, side, entry_price, quantity, stop_loss,
	take_profits, trailing, status, pending_order_ref,
	last_price_at, opened_at, closed_at, last_synced_at`

const liveStatuses = `('PENDING_OPEN', 'OPEN', 'PENDING_CLOSE')`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var takeProfits, trailing []byte

	err := row.Scan(
		&p.ID, &p.Instrument, &side,
		&p.EntryPrice, &p.Quantity, &p.StopLoss,
		&takeProfits, &trailing,
		&status, &p.PendingOrderRef,
		&p.LastPriceAt, &p.OpenedAt, &p.ClosedAt, &p.LastSyncedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if len(takeProfits) > 0 {
		if err := json.Unmarshal(takeProfits, &p.TakeProfits); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal take_profits: %w", err)
		}
	}
	if len(trailing) > 0 {
		if err := json.Unmarshal(trailing, &p.Trailing); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal trailing: %w", err)
		}
	}
	return p, nil
}

// Get returns the live position for an instrument.
func (s *PositionStore) Get(ctx context.Context, instrument string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE instrument = $1 AND status IN `+liveStatuses, instrument)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", instrument, err)
	}
	return p, nil
}

// Upsert atomically inserts or replaces a position record. The partial
// unique index rejects a second live position for the same instrument.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}

	takeProfits, err := json.Marshal(p.TakeProfits)
	if err != nil {
		return fmt.Errorf("postgres: marshal take_profits: %w", err)
	}
	trailing, err := json.Marshal(p.Trailing)
	if err != nil {
		return fmt.Errorf("postgres: marshal trailing: %w", err)
	}

	const query = `
		INSERT INTO positions (
			id, instrument, side, entry_price, quantity, stop_loss,
			take_profits, trailing, status, pending_order_ref,
			last_price_at, opened_at, closed_at, last_synced_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			side              = EXCLUDED.side,
			entry_price       = EXCLUDED.entry_price,
			quantity          = EXCLUDED.quantity,
			stop_loss         = EXCLUDED.stop_loss,
			take_profits      = EXCLUDED.take_profits,
			trailing          = EXCLUDED.trailing,
			status            = EXCLUDED.status,
			pending_order_ref = EXCLUDED.pending_order_ref,
			last_price_at     = EXCLUDED.last_price_at,
			closed_at         = EXCLUDED.closed_at,
			last_synced_at    = EXCLUDED.last_synced_at,
			updated_at        = NOW()`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.Instrument, string(p.Side),
		p.EntryPrice, p.Quantity, p.StopLoss,
		takeProfits, trailing,
		string(p.Status), p.PendingOrderRef,
		p.LastPriceAt, p.OpenedAt, p.ClosedAt, p.LastSyncedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrPositionExists
		}
		return fmt.Errorf("postgres: upsert position %s: %w", p.Instrument, err)
	}
	return nil
}

// ListOpen returns every live position.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status IN `+liveStatuses+`
		 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Transition moves the instrument's live position between statuses using a
// conditional update. Zero affected rows with a live position present means
// another orchestration attempt won the race.
func (s *PositionStore) Transition(ctx context.Context, instrument string, from, to domain.PositionStatus) error {
	const query = `
		UPDATE positions SET
			status     = $3,
			updated_at = NOW()
		WHERE instrument = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, instrument, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: transition %s %s->%s: %w", instrument, from, to, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, instrument); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrStateConflict
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
