package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Position represents a leveraged trade tracked against the exchange
type Position struct {
	ID          uuid.UUID        `json:"id"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	EntryPrice  float64          `json:"entry_price"`
	Quantity    float64          `json:"quantity"` // Size in base asset (e.g., BTC, ETH)
	Leverage    float64          `json:"leverage"`
	Status      string           `json:"status"`
	ClosePrice  *float64         `json:"close_price,omitempty"`
	CloseReason *string          `json:"close_reason,omitempty"`
	RealizedPnL *float64         `json:"realized_pnl,omitempty"`
	OpenedAt    time.Time        `json:"opened_at"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`
	SLOrderID   *string          `json:"sl_order_id,omitempty"`
	TPOrderIDs  [3]*string       `json:"tp_order_ids"`
	Metadata    PositionMetadata `json:"metadata"`
}

// PositionSide constants
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// PositionStatus constants
const (
	StatusOpen    = "OPEN"
	StatusClosing = "CLOSING" // claimed by a closer, exchange order in flight
	StatusClosed  = "CLOSED"
)

// Close reasons
const (
	CloseReasonManual   = "MANUAL"
	CloseReasonTP       = "TP"
	CloseReasonSL       = "SL"
	CloseReasonImported = "IMPORTED"
)

// Dependent order kinds
const (
	OrderKindStopLoss   = "STOP_LOSS"
	OrderKindTakeProfit = "TAKE_PROFIT"
)

// DependentOrder is a conditional order attached to an open position
type DependentOrder struct {
	Kind    string
	OrderID string
}

// IsLong checks if the position is a long (BUY) position
func (p *Position) IsLong() bool {
	return IsLongSide(p.Side)
}

// IsLongSide accepts both the BUY/SELL and LONG/SHORT vocabularies
func IsLongSide(side string) bool {
	s := strings.ToUpper(strings.TrimSpace(side))
	return s == SideBuy || s == "LONG"
}

// CloseSide returns the order side that flattens the position
func (p *Position) CloseSide() string {
	if p.IsLong() {
		return SideSell
	}
	return SideBuy
}

// DependentOrders lists the stop-loss and take-profit orders that are set
func (p *Position) DependentOrders() []DependentOrder {
	var orders []DependentOrder
	if p.SLOrderID != nil && *p.SLOrderID != "" {
		orders = append(orders, DependentOrder{Kind: OrderKindStopLoss, OrderID: *p.SLOrderID})
	}
	for _, id := range p.TPOrderIDs {
		if id != nil && *id != "" {
			orders = append(orders, DependentOrder{Kind: OrderKindTakeProfit, OrderID: *id})
		}
	}
	return orders
}

// IsSettled reports whether the close fields are consistent with a closed status
func (p *Position) IsSettled() bool {
	return p.Status == StatusClosed && p.ClosePrice != nil && p.RealizedPnL != nil && p.ClosedAt != nil
}

// MarkClosed fills the close fields. Status and close fields always move together.
func (p *Position) MarkClosed(closePrice, pnl float64, reason string, closedAt time.Time) {
	p.Status = StatusClosed
	p.ClosePrice = &closePrice
	p.RealizedPnL = &pnl
	p.CloseReason = &reason
	p.ClosedAt = &closedAt
}
