package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"tradeledger/internal/delivery/http/dto"
	"tradeledger/internal/domain"
	"tradeledger/internal/utils"
)

// defaultMetricsDays is the window used when from is omitted
const defaultMetricsDays = 30

// MetricsReader reads the daily rollups
type MetricsReader interface {
	Daily(ctx context.Context, from, to time.Time, symbol string) ([]*domain.PerformanceMetrics, error)
}

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	metrics MetricsReader
	now     func() time.Time
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics MetricsReader) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, now: time.Now}
}

// GetDailyMetrics returns the daily rollups
// GET /api/metrics/daily?from=YYYY-MM-DD&to=YYYY-MM-DD&symbol=BTCUSDT
func (h *MetricsHandler) GetDailyMetrics(c echo.Context) error {
	loc := utils.GetLocation()

	to := utils.TradingDay(h.now())
	if v := c.QueryParam("to"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return BadRequestResponse(c, "Invalid 'to' date, expected YYYY-MM-DD")
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -defaultMetricsDays)
	if v := c.QueryParam("from"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return BadRequestResponse(c, "Invalid 'from' date, expected YYYY-MM-DD")
		}
		from = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rows, err := h.metrics.Daily(ctx, from, to, c.QueryParam("symbol"))
	if err != nil {
		return DomainErrorResponse(c, err)
	}

	out := make([]dto.DailyMetricsOutput, 0, len(rows))
	for _, m := range rows {
		out = append(out, dto.DailyMetricsOutput{
			Date:          m.Date.Format(time.DateOnly),
			Symbol:        m.Symbol,
			TotalTrades:   m.TotalTrades,
			WinningTrades: m.WinningTrades,
			LosingTrades:  m.LosingTrades,
			WinRate:       m.WinRate(),
			TotalPnL:      m.TotalPnL,
		})
	}

	if to.Before(from) {
		from, to = to, from
	}
	return SuccessResponse(c, dto.DailyMetricsResponse{
		From:    from.Format(time.DateOnly),
		To:      to.Format(time.DateOnly),
		Metrics: out,
	})
}
