package dto

// ImportHistoryRequest represents the history import request
type ImportHistoryRequest struct {
	Days int `json:"days"` // 0 means the default window
}

// ImportHistoryResponse represents the outcome of an import
type ImportHistoryResponse struct {
	Success  bool `json:"success"`
	Imported int  `json:"imported"`
	Skipped  int  `json:"skipped"`
	Total    int  `json:"total"`
}

// ImportStatusResponse represents the last completed import
type ImportStatusResponse struct {
	LastRun  *string `json:"last_run"`
	Imported int     `json:"imported"`
	Skipped  int     `json:"skipped"`
	Total    int     `json:"total"`
}
