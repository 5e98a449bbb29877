package httpserver

import (
	"net/http"
	"time"

	"github.com/splitpay/server/pkg/responders"
)

// health reports liveness plus database connectivity.
func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	responders.JSON(w, code, map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(serverStartTime).Seconds()),
	})
}
