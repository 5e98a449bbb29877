package checkout

import (
	"errors"
	"fmt"

	"github.com/splitpay/server/internal/apierrors"
)

// Error is the orchestrator's typed failure: an API error code plus
// optional structured detail for the client (e.g. which card declined).
type Error struct {
	Code    apierrors.ErrorCode
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("checkout: %s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("checkout: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a checkout *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

func newError(code apierrors.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapInternal(message string, cause error) *Error {
	return &Error{Code: apierrors.ErrCodeInternalError, Message: message, cause: cause}
}
