package apierrors

import "net/http"

// ErrorCode is a machine-readable error identifier returned to widget and
// admin clients.
type ErrorCode string

// Request validation errors
const (
	ErrCodeMissingParams ErrorCode = "MISSING_PARAMS"
	ErrCodeInvalidShop   ErrorCode = "INVALID_SHOP"
	ErrCodeInvalidToken  ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidAmount ErrorCode = "INVALID_AMOUNT"
	ErrCodeTooManyCards  ErrorCode = "TOO_MANY_CARDS"
)

// Resource errors
const (
	ErrCodeStoreNotFound       ErrorCode = "STORE_NOT_FOUND"
	ErrCodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
)

// Payment-phase errors
const (
	ErrCodeCheckoutFailed ErrorCode = "CHECKOUT_FAILED"
	ErrCodeCardDeclined   ErrorCode = "CARD_DECLINED"
	ErrCodeStripeError    ErrorCode = "STRIPE_ERROR"
)

// Access and system errors
const (
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// IsRetryable reports whether the client may usefully retry the same
// request. Validation and decline failures are permanent; only transient
// provider and system conditions qualify.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeStripeError,
		ErrCodeRateLimitExceeded,
		ErrCodeInternalError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingParams,
		ErrCodeInvalidShop,
		ErrCodeInvalidToken,
		ErrCodeInvalidAmount,
		ErrCodeTooManyCards:
		return http.StatusBadRequest

	case ErrCodeUnauthorized:
		return http.StatusUnauthorized

	case ErrCodeCardDeclined,
		ErrCodeCheckoutFailed:
		return http.StatusPaymentRequired

	case ErrCodeForbidden:
		return http.StatusForbidden

	case ErrCodeStoreNotFound,
		ErrCodeTransactionNotFound,
		ErrCodeSessionNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case ErrCodeStripeError:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
