package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	custommiddleware "tradeledger/internal/middleware"
)

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	JWTSecret       string
	DB              Pinger
	PositionHandler *PositionHandler
	HistoryHandler  *HistoryHandler
	MetricsHandler  *MetricsHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	// Health check
	e.GET("/health", healthHandler(config.DB))

	// API group (protected with AuthMiddleware)
	api := e.Group("/api", custommiddleware.AuthMiddleware(config.JWTSecret))
	{
		api.POST("/positions/:id/close", config.PositionHandler.ClosePosition)
		api.POST("/history/import", config.HistoryHandler.ImportHistory)
		api.GET("/history/import/status", config.HistoryHandler.ImportStatus)
		api.GET("/metrics/daily", config.MetricsHandler.GetDailyMetrics)
	}
}

func healthHandler(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		dbStatus := "healthy"
		status := http.StatusOK
		if db == nil {
			dbStatus = "not configured"
		} else if err := db.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		return c.JSON(status, map[string]interface{}{
			"status":    dbStatus,
			"service":   "tradeledger-api",
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
