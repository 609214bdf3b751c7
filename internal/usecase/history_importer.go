package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	"tradeledger/internal/service"
)

const (
	// DefaultImportDays is used when the caller passes days <= 0
	DefaultImportDays = 30
	// MaxImportDays is how far back the exchange keeps closed PnL
	MaxImportDays = 730

	// ImportedLeverage stands in for the leverage the closed-PnL endpoint does not report
	ImportedLeverage = 1.0

	importLockKey = "history-import"
	importLockTTL = 10 * time.Minute
)

// ImportResult summarises one import run
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// HistoryImporter pulls closed positions from the exchange and stores the ones we do not have yet
type HistoryImporter struct {
	tx           domain.Transactor
	positionRepo domain.PositionRepository
	settingsRepo domain.SettingsRepository
	exchange     domain.ExchangeClient
	metrics      *service.MetricsAggregator
	notifier     domain.Notifier
	lock         domain.LockManager
	now          func() time.Time
	log          *logrus.Entry
}

// NewHistoryImporter creates a new HistoryImporter. notifier and lock may be nil.
func NewHistoryImporter(
	tx domain.Transactor,
	positionRepo domain.PositionRepository,
	settingsRepo domain.SettingsRepository,
	exchange domain.ExchangeClient,
	metrics *service.MetricsAggregator,
	notifier domain.Notifier,
	lock domain.LockManager,
) *HistoryImporter {
	return &HistoryImporter{
		tx:           tx,
		positionRepo: positionRepo,
		settingsRepo: settingsRepo,
		exchange:     exchange,
		metrics:      metrics,
		notifier:     notifier,
		lock:         lock,
		now:          time.Now,
		log:          logger.WithComponent("importer"),
	}
}

// Import fetches the last days of closed PnL and inserts the trades that are not already stored.
// Either every surviving trade is inserted (with its metrics) or none is.
func (h *HistoryImporter) Import(ctx context.Context, days int) (*ImportResult, error) {
	days = normalizeImportDays(days)
	log := h.log.WithField("days", days)

	if h.lock != nil {
		unlock, err := h.lock.Acquire(ctx, importLockKey, importLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.ErrImportInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("failed to acquire import lock: %w", err)
		}
		defer unlock()
	}

	startTime := h.now()
	window := domain.LastDays(startTime, days)

	// Step 1: fetch, any failure aborts before a single write
	trades, err := h.exchange.FetchClosedPnL(ctx, window)
	if err != nil {
		log.WithError(err).Error("❌ failed to fetch closed pnl")
		return nil, fmt.Errorf("failed to fetch closed pnl: %w", err)
	}
	log.WithField("trades", len(trades)).Info("fetched closed pnl")

	// Step 2: map to positions
	candidates := make([]*domain.Position, 0, len(trades))
	for _, trade := range trades {
		position, defaulted := h.toPosition(trade, startTime)
		if defaulted {
			log.WithFields(logrus.Fields{
				"symbol":   trade.Symbol,
				"order_id": trade.OrderID,
				"created":  trade.CreatedTime,
				"updated":  trade.UpdatedTime,
			}).Warn("⚠️ invalid trade timestamp, using import time")
		}
		candidates = append(candidates, position)
	}

	// Step 3: dedup and insert under the import lock
	result := &ImportResult{Total: len(trades)}
	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := h.positionRepo.LockImports(ctx); err != nil {
			return err
		}

		existing, err := h.positionRepo.GetClosedTradeKeys(ctx)
		if err != nil {
			return err
		}

		kept, skipped := service.FilterDuplicates(candidates, existing)
		if err := h.positionRepo.InsertClosedBatch(ctx, kept); err != nil {
			return err
		}

		for _, p := range kept {
			if err := h.metrics.Record(ctx, p.Symbol, *p.ClosedAt, *p.RealizedPnL); err != nil {
				return err
			}
		}

		result.Imported = len(kept)
		result.Skipped = len(skipped)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("❌ history import rolled back")
		return nil, fmt.Errorf("failed to import history: %w", err)
	}

	log.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"total":    result.Total,
		"took":     time.Since(startTime).String(),
	}).Info("✓ history import completed")

	h.recordRun(ctx, result, log)

	if h.notifier != nil {
		if err := h.notifier.SendImportSummary(ctx, result.Imported, result.Skipped, result.Total); err != nil {
			log.WithError(err).Warn("⚠️ failed to send import notification")
		}
	}

	return result, nil
}

// LastRun returns when the last import completed and its result, if any
func (h *HistoryImporter) LastRun(ctx context.Context) (time.Time, *ImportResult, error) {
	raw, err := h.settingsRepo.Get(ctx, domain.SettingImportLastRun)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && raw == "") {
		return time.Time{}, nil, nil
	}
	if err != nil {
		return time.Time{}, nil, err
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid %s setting %q: %w", domain.SettingImportLastRun, raw, err)
	}

	var result ImportResult
	rawResult, err := h.settingsRepo.Get(ctx, domain.SettingImportLastResult)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return at, nil, nil
		}
		return time.Time{}, nil, err
	}
	if err := json.Unmarshal([]byte(rawResult), &result); err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid %s setting: %w", domain.SettingImportLastResult, err)
	}
	return at, &result, nil
}

// recordRun stores the last run for operators. The import is already committed, so failures only log.
func (h *HistoryImporter) recordRun(ctx context.Context, result *ImportResult, log *logrus.Entry) {
	raw, _ := json.Marshal(result)
	if err := h.settingsRepo.Set(ctx, domain.SettingImportLastResult, string(raw)); err != nil {
		log.WithError(err).Warn("failed to record import result")
	}
	if err := h.settingsRepo.Set(ctx, domain.SettingImportLastRun, h.now().UTC().Format(time.RFC3339)); err != nil {
		log.WithError(err).Warn("failed to record import time")
	}
}

// toPosition maps one exchange record to a closed position. defaulted reports
// that a timestamp was missing or malformed and importTime was used instead.
func (h *HistoryImporter) toPosition(trade domain.ExchangeTrade, importTime time.Time) (*domain.Position, bool) {
	closedAt, closedOK := parseMillis(trade.UpdatedTime)
	if !closedOK {
		closedAt, closedOK = parseMillis(trade.CreatedTime)
	}
	openedAt, openedOK := parseMillis(trade.CreatedTime)

	defaulted := !closedOK || !openedOK
	if !closedOK {
		closedAt = importTime
	}
	if !openedOK {
		openedAt = closedAt
	}

	quantity := trade.ClosedSize
	if quantity <= 0 {
		quantity = trade.Qty
	}

	symbol := strings.ToUpper(trade.Symbol)
	classification := service.Classify(symbol, trade.AvgEntryPrice, quantity, ImportedLeverage)

	position := &domain.Position{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       importedSide(trade.Side),
		EntryPrice: trade.AvgEntryPrice,
		Quantity:   quantity,
		Leverage:   ImportedLeverage,
		OpenedAt:   openedAt,
		Metadata: domain.PositionMetadata{
			Source: domain.SourceExchangeImport,
			ExchangeImport: &domain.ExchangeImportInfo{
				SourceTradeID:      trade.OrderID,
				OrderID:            trade.OrderID,
				MarginMode:         marginMode(trade.MarginMode),
				ClosedPnL:          trade.ClosedPnL,
				CumEntryValue:      trade.CumEntryValue,
				CumExitValue:       trade.CumExitValue,
				FillCount:          trade.FillCount,
				ExecType:           trade.ExecType,
				ExchangeLeverage:   trade.Leverage,
				LeverageAssumed:    true,
				TimestampDefaulted: defaulted,
			},
			Classification: &classification,
		},
	}
	position.MarkClosed(trade.AvgExitPrice, trade.ClosedPnL, domain.CloseReasonImported, closedAt)

	return position, defaulted
}

// importedSide maps the exchange vocabulary to BUY/SELL. Long/Short name the
// position; Buy/Sell on a closed-PnL record name the closing order, which is
// opposite to the position.
func importedSide(side string) string {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "LONG":
		return domain.SideBuy
	case "SHORT":
		return domain.SideSell
	case "SELL":
		return domain.SideBuy
	default:
		return domain.SideSell
	}
}

// marginMode maps the exchange tradeMode (0 cross, 1 isolated)
func marginMode(mode string) string {
	switch mode {
	case "0":
		return "CROSS"
	case "1":
		return "ISOLATED"
	default:
		return mode
	}
}

func parseMillis(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func normalizeImportDays(days int) int {
	if days <= 0 {
		return DefaultImportDays
	}
	if days > MaxImportDays {
		return MaxImportDays
	}
	return days
}
