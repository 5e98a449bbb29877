package idempotency

import (
	"bytes"
	"net/http"
	"time"

	"github.com/splitpay/server/internal/logger"
)

const (
	// HeaderKey carries the client-chosen idempotency key.
	HeaderKey = "Idempotency-Key"

	// DefaultTTL matches the window in which a buyer might retry a
	// checkout after a flaky connection.
	DefaultTTL = 24 * time.Hour
)

// recorder captures the response so it can be replayed verbatim.
type recorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
}

func (r *recorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// cacheable reports whether an outcome should be replayed. Success is
// cached so a retried complete-checkout cannot charge twice; a decline is
// cached because retrying the identical request will decline again.
func cacheable(statusCode int) bool {
	return (statusCode >= 200 && statusCode < 300) || statusCode == http.StatusPaymentRequired
}

// Middleware replays recorded outcomes for requests repeating an
// Idempotency-Key. Requests without the header pass through untouched.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Scope by method and path so one key cannot collide across
			// endpoints.
			key := r.Method + ":" + r.URL.Path + ":" + rawKey

			if cached, ok := store.Get(r.Context(), key); ok {
				log := logger.FromContext(r.Context())
				log.Info().
					Str("idempotency_key", rawKey).
					Int("status", cached.StatusCode).
					Msg("request.idempotent_replay")
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			if !cacheable(rec.statusCode) {
				return
			}
			headers := make(map[string]string)
			for k := range rec.ResponseWriter.Header() {
				headers[k] = rec.ResponseWriter.Header().Get(k)
			}
			_ = store.Set(r.Context(), key, &Response{
				StatusCode: rec.statusCode,
				Headers:    headers,
				Body:       rec.body.Bytes(),
				RecordedAt: time.Now(),
			}, ttl)
		})
	}
}
