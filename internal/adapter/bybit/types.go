package bybit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
)

// apiResponse is the common v5 response envelope
type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

type tickerResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

type createOrderRequest struct {
	Category   string `json:"category"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	OrderType  string `json:"orderType"`
	Qty        string `json:"qty"`
	ReduceOnly bool   `json:"reduceOnly"`
}

type cancelOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	OrderID     string `json:"orderId"`
	OrderFilter string `json:"orderFilter"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type closedPnLResult struct {
	Category       string          `json:"category"`
	List           []closedPnLItem `json:"list"`
	NextPageCursor string          `json:"nextPageCursor"`
}

type closedPnLItem struct {
	Symbol        string `json:"symbol"`
	OrderID       string `json:"orderId"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	OrderPrice    string `json:"orderPrice"`
	OrderType     string `json:"orderType"`
	ExecType      string `json:"execType"`
	ClosedSize    string `json:"closedSize"`
	CumEntryValue string `json:"cumEntryValue"`
	AvgEntryPrice string `json:"avgEntryPrice"`
	CumExitValue  string `json:"cumExitValue"`
	AvgExitPrice  string `json:"avgExitPrice"`
	ClosedPnl     string `json:"closedPnl"`
	FillCount     string `json:"fillCount"`
	Leverage      string `json:"leverage"`
	MarginMode    string `json:"tradeMode"`
	CreatedTime   string `json:"createdTime"`
	UpdatedTime   string `json:"updatedTime"`
}

func (it closedPnLItem) toDomain() domain.ExchangeTrade {
	fills, _ := strconv.Atoi(strings.TrimSpace(it.FillCount))
	return domain.ExchangeTrade{
		Symbol:        it.Symbol,
		Side:          it.Side,
		OrderID:       it.OrderID,
		OrderType:     it.OrderType,
		ExecType:      it.ExecType,
		MarginMode:    it.MarginMode,
		Leverage:      it.Leverage,
		Qty:           parseNumber(it.Qty),
		ClosedSize:    parseNumber(it.ClosedSize),
		AvgEntryPrice: parseNumber(it.AvgEntryPrice),
		AvgExitPrice:  parseNumber(it.AvgExitPrice),
		ClosedPnL:     parseNumber(it.ClosedPnl),
		CumEntryValue: parseNumber(it.CumEntryValue),
		CumExitValue:  parseNumber(it.CumExitValue),
		FillCount:     fills,
		CreatedTime:   it.CreatedTime,
		UpdatedTime:   it.UpdatedTime,
	}
}

// parseNumber parses the exchange's decimal strings, 0 when empty or malformed
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// orderSide maps BUY/SELL to the exchange's Buy/Sell
func orderSide(side string) string {
	if domain.IsLongSide(side) {
		return "Buy"
	}
	return "Sell"
}

// authRetCodes are retCodes meaning the key, signature or timestamp was refused
var authRetCodes = map[int]bool{
	10003: true, // invalid api key
	10004: true, // signature error
	10005: true, // permission denied
	10007: true, // user authentication failed
	10002: true, // timestamp outside recv window
}
