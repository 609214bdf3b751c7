package utils

import (
	"sync"
	"time"
)

var (
	locMu      sync.RWMutex
	tradingLoc = time.UTC
)

// SetLocation sets the timezone trading days are counted in.
// Unknown names fall back to UTC.
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}

	locMu.Lock()
	tradingLoc = loc
	locMu.Unlock()
	return err
}

// GetLocation returns the trading-day *time.Location
func GetLocation() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return tradingLoc
}

// TradingDay returns 00:00:00 of t's calendar day in the trading timezone
func TradingDay(t time.Time) time.Time {
	loc := GetLocation()
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FromUnixMillis converts epoch milliseconds to time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
