package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	"tradeledger/internal/service"
)

// settleTimeout bounds the final write once the closing order has filled
const settleTimeout = 15 * time.Second

// CloseResult is what a successful settlement reports back
type CloseResult struct {
	PositionID    uuid.UUID                    `json:"position_id"`
	RealizedPnL   float64                      `json:"realized_pnl"`
	ClosePrice    float64                      `json:"close_price"`
	DegradedPrice bool                         `json:"degraded_price"`
	Cancellations []domain.CancellationOutcome `json:"cancellations"`
}

// PositionCloser settles open positions against the exchange
type PositionCloser struct {
	tx           domain.Transactor
	positionRepo domain.PositionRepository
	exchange     domain.ExchangeClient
	metrics      *service.MetricsAggregator
	notifier     domain.Notifier
	now          func() time.Time
	log          *logrus.Entry
}

// NewPositionCloser creates a new PositionCloser. notifier may be nil.
func NewPositionCloser(
	tx domain.Transactor,
	positionRepo domain.PositionRepository,
	exchange domain.ExchangeClient,
	metrics *service.MetricsAggregator,
	notifier domain.Notifier,
) *PositionCloser {
	return &PositionCloser{
		tx:           tx,
		positionRepo: positionRepo,
		exchange:     exchange,
		metrics:      metrics,
		notifier:     notifier,
		now:          time.Now,
		log:          logger.WithComponent("closer"),
	}
}

// Close flattens a position on the exchange, cancels its stop/take-profit orders,
// books the realized PnL and rolls it into the daily metrics.
//
// Only one caller can get past the OPEN -> CLOSING claim, so a position is settled
// and counted in the metrics at most once.
func (pc *PositionCloser) Close(ctx context.Context, positionID uuid.UUID, reason string) (*CloseResult, error) {
	reason = strings.ToUpper(strings.TrimSpace(reason))
	if reason == "" {
		reason = domain.CloseReasonManual
	}
	log := pc.log.WithFields(logrus.Fields{"position_id": positionID, "reason": reason})

	// Step 1: claim
	position, err := pc.positionRepo.ClaimForClose(ctx, positionID)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(logrus.Fields{"symbol": position.Symbol, "side": position.Side})

	// Step 2: close price, entry price if the ticker is down
	closePrice, err := pc.exchange.GetTicker(ctx, position.Symbol)
	degraded := false
	if err != nil || closePrice <= 0 {
		log.WithError(err).Warn("⚠️ ticker unavailable, using entry price as close price")
		closePrice = position.EntryPrice
		degraded = true
	}

	// Step 3: closing order
	ack, err := pc.exchange.ClosePosition(ctx, position.Symbol, position.Quantity, position.CloseSide())
	if err != nil {
		// the claim must be released even if the request was cancelled
		if relErr := pc.positionRepo.ReleaseClaim(context.WithoutCancel(ctx), positionID); relErr != nil {
			log.WithError(relErr).Error("failed to release close claim")
		}
		log.WithError(err).Error("❌ closing order failed, position left open")
		return nil, fmt.Errorf("%w: %w", domain.ErrSettlementFailed, err)
	}
	log.WithField("order_id", ack.OrderID).Info("closing order filled")

	// Step 4: dependent orders, failures are reported and never abort
	cancellations := pc.cancelDependentOrders(ctx, position, log)

	// Step 5: PnL and classification
	pnl := service.RealizedPnL(position.Side, position.EntryPrice, closePrice, position.Quantity, position.Leverage)
	classification := service.Classify(position.Symbol, position.EntryPrice, position.Quantity, position.Leverage)

	closedAt := pc.now()
	position.MarkClosed(closePrice, pnl, reason, closedAt)
	position.Metadata.Source = domain.SourceManualClose
	position.Metadata.ManualClose = &domain.ManualCloseInfo{
		CloseReason:   reason,
		DegradedPrice: degraded,
		Cancellations: cancellations,
	}
	position.Metadata.Classification = &classification

	// Step 6+7: CLOSING -> CLOSED and the metrics increment commit together.
	// The exchange is already flat, so this runs even if the caller has given up.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	err = pc.tx.WithinTx(settleCtx, func(ctx context.Context) error {
		if err := pc.positionRepo.FinalizeClose(ctx, position); err != nil {
			return err
		}
		return pc.metrics.Record(ctx, position.Symbol, closedAt, pnl)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClosing) {
			log.Warn("position settled by another closer")
			return nil, err
		}
		// the exchange side is flat; the row stays CLOSING for reconciliation
		log.WithError(err).Error("❌ failed to persist settlement, position left in CLOSING")
		return nil, fmt.Errorf("failed to persist settlement of %s: %w", positionID, err)
	}

	log.WithFields(logrus.Fields{
		"close_price": closePrice,
		"pnl":         pnl,
		"degraded":    degraded,
	}).Info("✓ position closed")

	// Step 8: best effort
	if pc.notifier != nil {
		if err := pc.notifier.SendSettlement(ctx, position); err != nil {
			log.WithError(err).Warn("⚠️ failed to send settlement notification")
		}
	}

	return &CloseResult{
		PositionID:    positionID,
		RealizedPnL:   pnl,
		ClosePrice:    closePrice,
		DegradedPrice: degraded,
		Cancellations: cancellations,
	}, nil
}

func (pc *PositionCloser) cancelDependentOrders(ctx context.Context, position *domain.Position, log *logrus.Entry) []domain.CancellationOutcome {
	orders := position.DependentOrders()
	outcomes := make([]domain.CancellationOutcome, 0, len(orders))

	for _, order := range orders {
		outcome := domain.CancellationOutcome{Kind: order.Kind, OrderID: order.OrderID, OK: true}

		if err := pc.exchange.CancelConditionalOrder(ctx, position.Symbol, order.OrderID); err != nil {
			err = fmt.Errorf("%w: %s %s: %w", domain.ErrCancellationFailed, order.Kind, order.OrderID, err)
			outcome.OK = false
			outcome.Error = err.Error()
			log.WithError(err).Warn("⚠️ failed to cancel dependent order")
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}
