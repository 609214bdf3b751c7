package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/internal/domain"
)

// MetricsRepositoryImpl implements the MetricsRepository interface
type MetricsRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewMetricsRepository creates a new MetricsRepository
func NewMetricsRepository(db *pgxpool.Pool) domain.MetricsRepository {
	return &MetricsRepositoryImpl{db: db}
}

// Increment adds one trade to the (date, symbol) row in a single statement
func (r *MetricsRepositoryImpl) Increment(ctx context.Context, date time.Time, symbol string, pnl float64) error {
	win, loss := 0, 1
	if domain.IsWinningPnL(pnl) {
		win, loss = 1, 0
	}

	query := `
		INSERT INTO performance_metrics (date, symbol, total_trades, winning_trades, losing_trades, total_pnl, updated_at)
		VALUES ($1::date, $2, 1, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (date, symbol) DO UPDATE SET
			total_trades = performance_metrics.total_trades + 1,
			winning_trades = performance_metrics.winning_trades + EXCLUDED.winning_trades,
			losing_trades = performance_metrics.losing_trades + EXCLUDED.losing_trades,
			total_pnl = performance_metrics.total_pnl + EXCLUDED.total_pnl,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := conn(ctx, r.db).Exec(ctx, query, date.Format(time.DateOnly), symbol, win, loss, pnl)
	if err != nil {
		return fmt.Errorf("failed to upsert performance metrics: %w", err)
	}

	return nil
}

// Get retrieves one (date, symbol) row
func (r *MetricsRepositoryImpl) Get(ctx context.Context, date time.Time, symbol string) (*domain.PerformanceMetrics, error) {
	query := `
		SELECT date, symbol, total_trades, winning_trades, losing_trades, total_pnl, updated_at
		FROM performance_metrics
		WHERE date = $1::date AND symbol = $2
	`

	m, err := scanMetrics(conn(ctx, r.db).QueryRow(ctx, query, date.Format(time.DateOnly), symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get performance metrics: %w", err)
	}

	return m, nil
}

// List retrieves rows between from and to, optionally for one symbol
func (r *MetricsRepositoryImpl) List(ctx context.Context, from, to time.Time, symbol string) ([]*domain.PerformanceMetrics, error) {
	query := `
		SELECT date, symbol, total_trades, winning_trades, losing_trades, total_pnl, updated_at
		FROM performance_metrics
		WHERE date BETWEEN $1::date AND $2::date
		  AND ($3::text = '' OR symbol = $3::text)
		ORDER BY date ASC, symbol ASC
	`

	rows, err := conn(ctx, r.db).Query(ctx, query, from.Format(time.DateOnly), to.Format(time.DateOnly), symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*domain.PerformanceMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance metrics: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating performance metrics: %w", err)
	}

	return metrics, nil
}

func scanMetrics(row pgx.Row) (*domain.PerformanceMetrics, error) {
	m := &domain.PerformanceMetrics{}
	err := row.Scan(
		&m.Date,
		&m.Symbol,
		&m.TotalTrades,
		&m.WinningTrades,
		&m.LosingTrades,
		&m.TotalPnL,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
