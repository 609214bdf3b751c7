package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	"tradeledger/internal/utils"
)

// MetricsAggregator maintains the daily per-symbol performance rollups
type MetricsAggregator struct {
	metricsRepo domain.MetricsRepository
	log         *logrus.Entry
}

// NewMetricsAggregator creates a new MetricsAggregator
func NewMetricsAggregator(metricsRepo domain.MetricsRepository) *MetricsAggregator {
	return &MetricsAggregator{
		metricsRepo: metricsRepo,
		log:         logger.WithComponent("metrics"),
	}
}

// Record adds one settled trade to the rollup of its trading day.
// The increment is a single atomic upsert in the repository; callers never read-modify-write.
func (a *MetricsAggregator) Record(ctx context.Context, symbol string, closedAt time.Time, pnl float64) error {
	day := utils.TradingDay(closedAt)
	symbol = strings.ToUpper(symbol)

	if err := a.metricsRepo.Increment(ctx, day, symbol, pnl); err != nil {
		return fmt.Errorf("failed to record metrics for %s on %s: %w", symbol, day.Format(time.DateOnly), err)
	}

	a.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"date":   day.Format(time.DateOnly),
		"pnl":    pnl,
		"win":    domain.IsWinningPnL(pnl),
	}).Debug("metrics recorded")
	return nil
}

// Daily returns the rollups between from and to (inclusive), optionally for one symbol
func (a *MetricsAggregator) Daily(ctx context.Context, from, to time.Time, symbol string) ([]*domain.PerformanceMetrics, error) {
	if to.Before(from) {
		from, to = to, from
	}
	return a.metricsRepo.List(ctx, utils.TradingDay(from), utils.TradingDay(to), strings.ToUpper(symbol))
}
