package httpserver

import (
	"net/http"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/checkout"
	"github.com/splitpay/server/internal/logger"
)

// writeCheckoutError maps an orchestrator failure onto the error envelope.
// Unexpected errors are logged with detail and surfaced as a bare internal
// error.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	if ce, ok := checkout.AsError(err); ok {
		if ce.Code == apierrors.ErrCodeInternalError {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("request.internal_error")
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
			return
		}
		apierrors.WriteError(w, ce.Code, ce.Message, ce.Details)
		return
	}
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg("request.unhandled_error")
	apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
}
