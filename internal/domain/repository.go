package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transactor runs fn inside a database transaction carried by ctx.
// Repository calls made with that ctx join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PositionRepository defines the interface for position operations
type PositionRepository interface {
	// Save creates a new open position (used by the entry logic)
	Save(ctx context.Context, position *Position) error

	// GetByID retrieves a position by ID, ErrNotFound if absent
	GetByID(ctx context.Context, id uuid.UUID) (*Position, error)

	// GetOpenPositions retrieves all open positions
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// ClaimForClose moves a position OPEN -> CLOSING in a single conditional update.
	// Returns ErrNotFound, ErrInvalidState (closed) or ErrAlreadyClosing (claimed by someone else).
	ClaimForClose(ctx context.Context, id uuid.UUID) (*Position, error)

	// ReleaseClaim moves a position CLOSING -> OPEN after a failed settlement
	ReleaseClaim(ctx context.Context, id uuid.UUID) error

	// FinalizeClose moves a position CLOSING -> CLOSED writing the close fields.
	// Returns ErrAlreadyClosing if the position is no longer in CLOSING.
	FinalizeClose(ctx context.Context, position *Position) error

	// GetClosedTradeKeys retrieves (entry, close, closed_at) of every closed position
	GetClosedTradeKeys(ctx context.Context) ([]ClosedTradeKey, error)

	// InsertClosedBatch bulk inserts already-closed positions
	InsertClosedBatch(ctx context.Context, positions []*Position) error

	// LockImports serialises history imports for the rest of the current transaction
	LockImports(ctx context.Context) error
}

// ClosedTradeKey is the subset of a closed position the deduplicator needs
type ClosedTradeKey struct {
	EntryPrice float64
	ClosePrice float64
	ClosedAt   time.Time
}

// MetricsRepository defines the interface for daily performance rollups
type MetricsRepository interface {
	// Increment atomically adds one settled trade to the (date, symbol) row, creating it if needed
	Increment(ctx context.Context, date time.Time, symbol string, pnl float64) error

	// Get retrieves one row, ErrNotFound if absent
	Get(ctx context.Context, date time.Time, symbol string) (*PerformanceMetrics, error)

	// List retrieves rows with from <= date <= to, optionally filtered by symbol
	List(ctx context.Context, from, to time.Time, symbol string) ([]*PerformanceMetrics, error)
}

// SettingsRepository stores operator-facing key/value state
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// LockManager provides a cross-process lock
type LockManager interface {
	// Acquire returns an unlock func, or ErrLockHeld
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Notifier sends operator notifications. Failures are never fatal.
type Notifier interface {
	SendSettlement(ctx context.Context, position *Position) error
	SendImportSummary(ctx context.Context, imported, skipped, total int) error
}

// Setting keys written by the history importer
const (
	SettingImportLastRun    = "history_import.last_run"
	SettingImportLastResult = "history_import.last_result"
)
