package domain

import "time"

// PerformanceMetrics is the daily rollup for one symbol
type PerformanceMetrics struct {
	Date          time.Time `json:"date"`
	Symbol        string    `json:"symbol"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	TotalPnL      float64   `json:"total_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WinRate returns winning/total as a percentage
func (m *PerformanceMetrics) WinRate() float64 {
	if m.TotalTrades == 0 {
		return 0
	}
	return float64(m.WinningTrades) / float64(m.TotalTrades) * 100
}

// IsWinningPnL decides which counter a settled trade goes to. Zero counts as a loss.
func IsWinningPnL(pnl float64) bool {
	return pnl > 0
}
