package http

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradeledger/internal/delivery/http/dto"
	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	custommiddleware "tradeledger/internal/middleware"
	"tradeledger/internal/usecase"
)

const closeTimeout = 30 * time.Second

// PositionCloser is the settlement use case
type PositionCloser interface {
	Close(ctx context.Context, positionID uuid.UUID, reason string) (*usecase.CloseResult, error)
}

// PositionHandler handles position requests
type PositionHandler struct {
	closer PositionCloser
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(closer PositionCloser) *PositionHandler {
	return &PositionHandler{closer: closer}
}

// ClosePosition settles an open position
// POST /api/positions/:id/close
func (h *PositionHandler) ClosePosition(c echo.Context) error {
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid position ID")
	}

	var req dto.ClosePositionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return BadRequestResponse(c, "Invalid request body")
		}
	}

	reason := strings.ToUpper(strings.TrimSpace(req.Reason))
	switch reason {
	case "", domain.CloseReasonManual, domain.CloseReasonTP, domain.CloseReasonSL:
	default:
		return BadRequestResponse(c, "Invalid close reason, must be MANUAL, TP or SL")
	}

	userID, _ := custommiddleware.GetUserID(c)
	log := logger.WithComponent("http").WithFields(logrus.Fields{
		"position_id": positionID,
		"user_id":     userID,
	})
	log.Info("close position requested")

	ctx, cancel := context.WithTimeout(c.Request().Context(), closeTimeout)
	defer cancel()

	result, err := h.closer.Close(ctx, positionID, reason)
	if err != nil {
		log.WithError(err).Warn("close position failed")
		return DomainErrorResponse(c, err)
	}

	cancellations := make([]dto.CancellationOutput, 0, len(result.Cancellations))
	for _, co := range result.Cancellations {
		cancellations = append(cancellations, dto.CancellationOutput{
			Kind:    co.Kind,
			OrderID: co.OrderID,
			OK:      co.OK,
			Error:   co.Error,
		})
	}

	return SuccessResponse(c, dto.ClosePositionResponse{
		Success:       true,
		PositionID:    result.PositionID.String(),
		RealizedPnL:   result.RealizedPnL,
		ClosePrice:    result.ClosePrice,
		DegradedPrice: result.DegradedPrice,
		Cancellations: cancellations,
	})
}
