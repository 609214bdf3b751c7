package domain

import (
	"context"
	"time"
)

// ExchangeClient defines the exchange operations the settlement engine needs
type ExchangeClient interface {
	// GetTicker returns the last traded price for a symbol
	GetTicker(ctx context.Context, symbol string) (float64, error)

	// ClosePosition submits a reduce-only market order for size on side
	ClosePosition(ctx context.Context, symbol string, size float64, side string) (*CloseOrderAck, error)

	// CancelConditionalOrder cancels a stop-loss / take-profit order
	CancelConditionalOrder(ctx context.Context, symbol, orderID string) error

	// FetchClosedPnL returns closed positions reported by the exchange inside window
	FetchClosedPnL(ctx context.Context, window TimeWindow) ([]ExchangeTrade, error)
}

// CloseOrderAck is the exchange acknowledgement of a closing order
type CloseOrderAck struct {
	OrderID     string
	OrderLinkID string
}

// TimeWindow is a half-open interval [Start, End)
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window ending at now and spanning days
func LastDays(now time.Time, days int) TimeWindow {
	return TimeWindow{Start: now.AddDate(0, 0, -days), End: now}
}

// ExchangeTrade is one closed-PnL record as reported by the exchange.
// Timestamps are kept raw (epoch ms strings) so malformed values can be detected by the importer.
type ExchangeTrade struct {
	Symbol        string
	Side          string // exchange vocabulary: Buy/Sell or Long/Short
	OrderID       string
	OrderType     string
	ExecType      string
	MarginMode    string
	Leverage      string
	Qty           float64
	ClosedSize    float64
	AvgEntryPrice float64
	AvgExitPrice  float64
	ClosedPnL     float64
	CumEntryValue float64
	CumExitValue  float64
	FillCount     int
	CreatedTime   string
	UpdatedTime   string
}
