package http

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"tradeledger/internal/delivery/http/dto"
	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	custommiddleware "tradeledger/internal/middleware"
	"tradeledger/internal/usecase"
)

const importTimeout = 5 * time.Minute

// HistoryImporter is the history import use case
type HistoryImporter interface {
	Import(ctx context.Context, days int) (*usecase.ImportResult, error)
	LastRun(ctx context.Context) (time.Time, *usecase.ImportResult, error)
}

// HistoryHandler handles history import requests
type HistoryHandler struct {
	importer HistoryImporter
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(importer HistoryImporter) *HistoryHandler {
	return &HistoryHandler{importer: importer}
}

// ImportHistory pulls closed positions from the exchange
// POST /api/history/import
func (h *HistoryHandler) ImportHistory(c echo.Context) error {
	var req dto.ImportHistoryRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return BadRequestResponse(c, "Invalid request body")
		}
	}
	if req.Days < 0 {
		return BadRequestResponse(c, "days must not be negative")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), importTimeout)
	defer cancel()

	userID, _ := custommiddleware.GetUserID(c)
	log := logger.WithComponent("http").WithField("user_id", userID)
	log.WithField("days", req.Days).Info("history import requested")

	result, err := h.importer.Import(ctx, req.Days)
	if err != nil {
		log.WithError(err).Warn("history import failed")

		var details interface{}
		switch {
		case errors.Is(err, domain.ErrExchangeAuthFailed):
			details = "exchange rejected the API credentials or signature"
		case errors.Is(err, domain.ErrExchangeUnavailable):
			details = "exchange did not answer, retry later"
		}
		status, code := Classify(err)
		return ErrorResponse(c, status, code, err.Error(), details)
	}

	return SuccessResponse(c, dto.ImportHistoryResponse{
		Success:  true,
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Total:    result.Total,
	})
}

// ImportStatus returns the last completed import
// GET /api/history/import/status
func (h *HistoryHandler) ImportStatus(c echo.Context) error {
	at, result, err := h.importer.LastRun(c.Request().Context())
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	resp := dto.ImportStatusResponse{}
	if !at.IsZero() {
		s := at.Format(time.RFC3339)
		resp.LastRun = &s
	}
	if result != nil {
		resp.Imported = result.Imported
		resp.Skipped = result.Skipped
		resp.Total = result.Total
	}

	return SuccessResponse(c, resp)
}
