package domain

import "errors"

var (
	// ErrNotFound is returned when a position id is unknown
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a position is not open
	ErrInvalidState = errors.New("position is not open")

	// ErrAlreadyClosing is returned when another closer claimed the position first
	ErrAlreadyClosing = errors.New("position is already being closed")

	// ErrSettlementFailed is returned when the exchange rejected the closing order.
	// The position stays open.
	ErrSettlementFailed = errors.New("settlement failed")

	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrExchangeRejected    = errors.New("exchange rejected request")
	ErrExchangeAuthFailed  = errors.New("exchange authentication failed")

	// ErrCancellationFailed marks a dependent order that could not be cancelled.
	// Never fatal to a settlement.
	ErrCancellationFailed = errors.New("conditional order cancellation failed")

	ErrImportInProgress = errors.New("history import already in progress")
	ErrLockHeld         = errors.New("lock already held")
)
