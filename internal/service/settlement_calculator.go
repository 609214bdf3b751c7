package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
)

// majorCoins are the non-BTC/ETH tickers classified as MAJOR
var majorCoins = []string{"SOL", "BNB", "XRP", "ADA", "DOGE", "AVAX", "DOT", "LINK", "LTC", "TRX", "MATIC", "TON"}

// RealizedPnL calculates the realized PnL of a leveraged position.
// Formula:
// - PriceDiff = ClosePrice - EntryPrice (long), EntryPrice - ClosePrice (short)
// - RealizedPnL = PriceDiff * Quantity * Leverage
// No rounding is applied.
func RealizedPnL(side string, entryPrice, closePrice, quantity, leverage float64) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(closePrice)

	diff := exit.Sub(entry)
	if !domain.IsLongSide(side) {
		diff = entry.Sub(exit)
	}

	pnl := diff.Mul(decimal.NewFromFloat(quantity)).Mul(decimal.NewFromFloat(leverage))
	return pnl.InexactFloat64()
}

// Classify computes margin, symbol category and margin bucket for analytics.
// Initial Margin = (EntryPrice * Quantity) / Leverage, leverage below 1 counts as 1.
func Classify(symbol string, entryPrice, quantity, leverage float64) domain.Classification {
	if leverage < 1 {
		leverage = 1
	}
	margin := decimal.NewFromFloat(entryPrice).
		Mul(decimal.NewFromFloat(quantity)).
		Div(decimal.NewFromFloat(leverage)).
		InexactFloat64()

	return domain.Classification{
		Margin:         margin,
		SymbolCategory: SymbolCategory(symbol),
		MarginBucket:   MarginBucket(margin),
	}
}

// SymbolCategory buckets a symbol into BTC_ETH, MAJOR or ALTCOIN
func SymbolCategory(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "BTC") || strings.Contains(s, "ETH") {
		return domain.CategoryBTCETH
	}
	for _, coin := range majorCoins {
		if strings.Contains(s, coin) {
			return domain.CategoryMajor
		}
	}
	return domain.CategoryAltcoin
}

// MarginBucket buckets a margin amount (USDT)
func MarginBucket(margin float64) string {
	switch {
	case margin < 1:
		return domain.MarginBucketUnder1
	case margin < 2:
		return domain.MarginBucket1To2
	case margin <= 5:
		return domain.MarginBucket2To5
	default:
		return domain.MarginBucketOver5
	}
}
