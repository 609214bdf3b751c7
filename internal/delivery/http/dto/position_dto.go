package dto

// ClosePositionRequest represents the close position request
type ClosePositionRequest struct {
	Reason string `json:"reason"` // MANUAL (default), TP or SL
}

// ClosePositionResponse represents a settled position
type ClosePositionResponse struct {
	Success       bool                 `json:"success"`
	PositionID    string               `json:"position_id"`
	RealizedPnL   float64              `json:"realized_pnl"`
	ClosePrice    float64              `json:"close_price"`
	DegradedPrice bool                 `json:"degraded_price"`
	Cancellations []CancellationOutput `json:"cancellations"`
}

// CancellationOutput is one dependent order cancellation attempt
type CancellationOutput struct {
	Kind    string `json:"kind"`
	OrderID string `json:"order_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
