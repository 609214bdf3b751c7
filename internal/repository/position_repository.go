package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/internal/domain"
)

// importLockID is the advisory lock key that serialises history imports
const importLockID int64 = 0x7472_6164_656c_6467

const positionColumns = `
	id, symbol, side, entry_price, quantity, leverage, status,
	close_price, close_reason, realized_pnl, opened_at, closed_at,
	sl_order_id, tp1_order_id, tp2_order_id, tp3_order_id, metadata`

// PositionRepositoryImpl implements the PositionRepository interface
type PositionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *pgxpool.Pool) domain.PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

// Save creates a new position
func (r *PositionRepositoryImpl) Save(ctx context.Context, position *domain.Position) error {
	metadata, err := json.Marshal(position.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal position metadata: %w", err)
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = conn(ctx, r.db).Exec(ctx, query, positionArgs(position, metadata)...)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	return nil
}

// GetByID retrieves a position by ID
func (r *PositionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	position, err := scanPosition(conn(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return position, nil
}

// GetOpenPositions retrieves all open positions
func (r *PositionRepositoryImpl) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'OPEN'
		ORDER BY opened_at ASC
	`

	rows, err := conn(ctx, r.db).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// ClaimForClose moves OPEN -> CLOSING in one conditional update
func (r *PositionRepositoryImpl) ClaimForClose(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	db := conn(ctx, r.db)
	query := `
		UPDATE positions
		SET status = 'CLOSING'
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + positionColumns

	position, err := scanPosition(db.QueryRow(ctx, query, id))
	if err == nil {
		return position, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim position: %w", err)
	}

	// nothing updated, find out why
	var status string
	err = db.QueryRow(ctx, `SELECT status FROM positions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position status: %w", err)
	}

	if status == domain.StatusClosing {
		return nil, domain.ErrAlreadyClosing
	}
	return nil, fmt.Errorf("%w: position %s is %s", domain.ErrInvalidState, id, status)
}

// ReleaseClaim moves CLOSING -> OPEN
func (r *PositionRepositoryImpl) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE positions SET status = 'OPEN' WHERE id = $1 AND status = 'CLOSING'`

	if _, err := conn(ctx, r.db).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release position claim: %w", err)
	}

	return nil
}

// FinalizeClose moves CLOSING -> CLOSED with the close fields
func (r *PositionRepositoryImpl) FinalizeClose(ctx context.Context, position *domain.Position) error {
	metadata, err := json.Marshal(position.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal position metadata: %w", err)
	}

	query := `
		UPDATE positions
		SET status = 'CLOSED',
		    close_price = $2,
		    close_reason = $3,
		    realized_pnl = $4,
		    closed_at = $5,
		    metadata = $6
		WHERE id = $1 AND status = 'CLOSING'
	`

	result, err := conn(ctx, r.db).Exec(ctx, query,
		position.ID,
		position.ClosePrice,
		position.CloseReason,
		position.RealizedPnL,
		position.ClosedAt,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize position close: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyClosing
	}

	return nil
}

// GetClosedTradeKeys retrieves the dedup keys of every closed position
func (r *PositionRepositoryImpl) GetClosedTradeKeys(ctx context.Context) ([]domain.ClosedTradeKey, error) {
	query := `
		SELECT entry_price, close_price, closed_at
		FROM positions
		WHERE status = 'CLOSED' AND close_price IS NOT NULL AND closed_at IS NOT NULL
	`

	rows, err := conn(ctx, r.db).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	var keys []domain.ClosedTradeKey
	for rows.Next() {
		var k domain.ClosedTradeKey
		if err := rows.Scan(&k.EntryPrice, &k.ClosePrice, &k.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trades: %w", err)
	}

	return keys, nil
}

// InsertClosedBatch inserts closed positions in one round trip
func (r *PositionRepositoryImpl) InsertClosedBatch(ctx context.Context, positions []*domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	batch := &pgx.Batch{}
	for _, p := range positions {
		metadata, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal position metadata: %w", err)
		}
		batch.Queue(query, positionArgs(p, metadata)...)
	}

	br := conn(ctx, r.db).SendBatch(ctx, batch)
	for range positions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert closed position: %w", err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert closed positions: %w", err)
	}

	return nil
}

// LockImports takes a transaction-scoped advisory lock, released on commit/rollback
func (r *PositionRepositoryImpl) LockImports(ctx context.Context) error {
	if _, err := conn(ctx, r.db).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, importLockID); err != nil {
		return fmt.Errorf("failed to take import lock: %w", err)
	}
	return nil
}

func positionArgs(p *domain.Position, metadata []byte) []any {
	return []any{
		p.ID,
		p.Symbol,
		p.Side,
		p.EntryPrice,
		p.Quantity,
		p.Leverage,
		p.Status,
		p.ClosePrice,
		p.CloseReason,
		p.RealizedPnL,
		p.OpenedAt,
		p.ClosedAt,
		p.SLOrderID,
		p.TPOrderIDs[0],
		p.TPOrderIDs[1],
		p.TPOrderIDs[2],
		metadata,
	}
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	position := &domain.Position{}
	var metadata []byte

	err := row.Scan(
		&position.ID,
		&position.Symbol,
		&position.Side,
		&position.EntryPrice,
		&position.Quantity,
		&position.Leverage,
		&position.Status,
		&position.ClosePrice,
		&position.CloseReason,
		&position.RealizedPnL,
		&position.OpenedAt,
		&position.ClosedAt,
		&position.SLOrderID,
		&position.TPOrderIDs[0],
		&position.TPOrderIDs[1],
		&position.TPOrderIDs[2],
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &position.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode position metadata: %w", err)
		}
	}

	return position, nil
}
