package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tradeledger/internal/domain"
)

// Error codes returned next to the message so callers can branch without parsing it
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeAlreadyClosing      = "ALREADY_CLOSING"
	CodeImportInProgress    = "IMPORT_IN_PROGRESS"
	CodeSettlementFailed    = "SETTLEMENT_FAILED"
	CodeExchangeUnavailable = "EXCHANGE_UNAVAILABLE"
	CodeExchangeRejected    = "EXCHANGE_REJECTED"
	CodeExchangeAuthFailed  = "EXCHANGE_AUTH_FAILED"
	CodeInternal            = "INTERNAL"
)

// ErrorBody is the failure shape of every API endpoint
type ErrorBody struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse sends a 200 with data as the body
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// ErrorResponse sends an error response
func ErrorResponse(c echo.Context, statusCode int, code, message string, details interface{}) error {
	return c.JSON(statusCode, ErrorBody{
		Success: false,
		Code:    code,
		Error:   message,
		Details: details,
	})
}

// BadRequestResponse sends a 400 Bad Request response for a malformed request
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, CodeBadRequest, message, nil)
}

// DomainErrorResponse reports a failed operation
func DomainErrorResponse(c echo.Context, err error) error {
	status, code := Classify(err)
	return ErrorResponse(c, status, code, err.Error(), nil)
}

// Classify returns the HTTP status and error code of a failed operation.
// Operation failures are always 5xx: 502 when the exchange is at fault,
// 503 when another settlement or import holds the resource, 500 otherwise.
// The code tells the cases apart.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusInternalServerError, CodeNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusInternalServerError, CodeInvalidState
	case errors.Is(err, domain.ErrAlreadyClosing):
		return http.StatusServiceUnavailable, CodeAlreadyClosing
	case errors.Is(err, domain.ErrImportInProgress):
		return http.StatusServiceUnavailable, CodeImportInProgress
	case errors.Is(err, domain.ErrSettlementFailed):
		return http.StatusBadGateway, CodeSettlementFailed
	case errors.Is(err, domain.ErrExchangeAuthFailed):
		return http.StatusBadGateway, CodeExchangeAuthFailed
	case errors.Is(err, domain.ErrExchangeRejected):
		return http.StatusBadGateway, CodeExchangeRejected
	case errors.Is(err, domain.ErrExchangeUnavailable):
		return http.StatusBadGateway, CodeExchangeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
