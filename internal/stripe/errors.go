package stripe

import (
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v72"
)

// ErrorKind classifies provider failures for the orchestrator.
type ErrorKind string

const (
	// KindDeclined is a permanent card failure: the buyer must use a
	// different card.
	KindDeclined ErrorKind = "declined"

	// KindInteractiveRequired means the card demands 3DS or another
	// interactive step, which this flow rejects.
	KindInteractiveRequired ErrorKind = "interactive_required"

	// KindTransient covers network errors, rate limits, and 5xx responses.
	// Safe to retry.
	KindTransient ErrorKind = "transient"

	// KindInvalid is a malformed request or unusable resource state.
	KindInvalid ErrorKind = "invalid"
)

// ProviderError is the typed boundary error for all Stripe calls. The
// orchestrator branches on Kind only; raw provider details ride along for
// logging and the failed-card response.
type ProviderError struct {
	Kind        ErrorKind
	Code        string
	DeclineCode string
	Message     string
}

func (e *ProviderError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("stripe: %s (%s/%s): %s", e.Kind, e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("stripe: %s (%s): %s", e.Kind, e.Code, e.Message)
}

// Retryable reports whether the call may be retried as-is.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTransient
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}

// wrapError converts a stripe-go error into a ProviderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var sErr *stripeapi.Error
	if errors.As(err, &sErr) {
		kind := KindInvalid
		switch {
		case sErr.Type == stripeapi.ErrorTypeCard:
			kind = KindDeclined
		case sErr.HTTPStatusCode == 429 || sErr.HTTPStatusCode >= 500:
			kind = KindTransient
		case sErr.Code == stripeapi.ErrorCodeLockTimeout:
			kind = KindTransient
		}
		return &ProviderError{
			Kind:        kind,
			Code:        string(sErr.Code),
			DeclineCode: string(sErr.DeclineCode),
			Message:     sErr.Msg,
		}
	}

	// Non-API failure: connection reset, DNS, timeout. All transient.
	msg := err.Error()
	kind := KindTransient
	if strings.Contains(msg, "circuit breaker is open") {
		kind = KindTransient
	}
	return &ProviderError{Kind: kind, Code: "network_error", Message: msg}
}
