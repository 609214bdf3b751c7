package dto

// DailyMetricsOutput represents one daily rollup row
type DailyMetricsOutput struct {
	Date          string  `json:"date"`
	Symbol        string  `json:"symbol"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
}

// DailyMetricsResponse represents the daily metrics listing
type DailyMetricsResponse struct {
	From    string               `json:"from"`
	To      string               `json:"to"`
	Metrics []DailyMetricsOutput `json:"metrics"`
}
