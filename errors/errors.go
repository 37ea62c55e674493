package errors

import (
	"fmt"
	"net/http"

	"github.com/firstnattapon/24wash-backend/logger"
)

type ErrorType string

const (
	ValidationError    ErrorType = "VALIDATION_ERROR"
	TransportError     ErrorType = "TRANSPORT_FAILURE"
	InvalidSlipError   ErrorType = "INVALID_SLIP"
	AmountMismatch     ErrorType = "AMOUNT_MISMATCH"
	InvalidCouponError ErrorType = "INVALID_COUPON"
	ExtractionError    ErrorType = "EXTRACTION_FAILURE"
	DispatchError      ErrorType = "DISPATCH_FAILURE"
	ServerError        ErrorType = "SERVER_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// GetHTTPStatus returns the HTTP status code associated with the error.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus == 0 {
		return getHTTPStatus(e.Type)
	}
	return e.HTTPStatus
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// Helper constructors for the decision-engine error taxonomy.

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// TransportFailure covers timeouts and network errors against any external
// dependency. Always non-fatal: callers map it to a system-error outcome.
func TransportFailure(service string, err error) *AppError {
	logger.GetLogger().Errorw("External service transport failure", "service", service, "error", err)
	return &AppError{
		Type:       TransportError,
		Message:    fmt.Sprintf("%s is unreachable", service),
		Detail:     "Please try again later",
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

// InvalidSlip is a terminal domain rejection from the slip verifier
// (duplicate, amount mismatch, wrong account, unrecognized image).
func InvalidSlip(code int, message string) *AppError {
	return &AppError{
		Type:       InvalidSlipError,
		Code:       fmt.Sprintf("%d", code),
		Message:    "Slip verification rejected",
		Detail:     message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NoChannelForAmount reports an amount that resolves to no configured machine
// channel under the strict policy.
func NoChannelForAmount(amount string) *AppError {
	return &AppError{
		Type:       AmountMismatch,
		Message:    "Amount does not match any machine",
		Detail:     fmt.Sprintf("amount: %s", amount),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func CouponNotFound(code string) *AppError {
	return &AppError{
		Type:       InvalidCouponError,
		Message:    "Coupon is invalid or already used",
		Detail:     fmt.Sprintf("code: %s", code),
		HTTPStatus: http.StatusNotFound,
	}
}

// ExtractionFailed reports that the fallback extractor could not produce a
// usable amount. Terminal: the operator must be notified, never silently
// dropped.
func ExtractionFailed(detail string) *AppError {
	return &AppError{
		Type:       ExtractionError,
		Message:    "Could not extract payment data",
		Detail:     detail,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// DispatchFailed reports a command-queue write failure. Must never be treated
// as success by callers.
func DispatchFailed(channel string, err error) *AppError {
	logger.GetLogger().Errorw("Command dispatch failure", "channel", channel, "error", err)
	return &AppError{
		Type:       DispatchError,
		Message:    "Failed to dispatch machine command",
		Detail:     fmt.Sprintf("channel: %s", channel),
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case TransportError:
		return http.StatusBadGateway
	case InvalidSlipError, AmountMismatch:
		return http.StatusUnprocessableEntity
	case InvalidCouponError:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
