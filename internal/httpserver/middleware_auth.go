package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/auth"
)

// SessionTokenHeader carries the admin session token issued after OAuth.
const SessionTokenHeader = "X-Session-Token"

type contextKey string

const shopDomainKey contextKey = "shopDomain"

// sessionAuth verifies the admin session token and puts the shop domain in
// the request context.
func sessionAuth(tokens *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionTokenHeader)
			if token == "" {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "session token required")
				return
			}
			shop, err := tokens.Verify(token)
			if err != nil {
				message := "invalid session token"
				if errors.Is(err, auth.ErrTokenExpired) {
					message = "session token expired"
				}
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, message)
				return
			}
			ctx := context.WithValue(r.Context(), shopDomainKey, shop)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// shopFromContext returns the authenticated shop domain, empty if the
// request did not pass sessionAuth.
func shopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopDomainKey).(string)
	return shop
}

// shopRateKey keys admin rate limits by authenticated shop so one busy
// merchant cannot starve the others.
func shopRateKey(r *http.Request) (string, error) {
	if shop := shopFromContext(r.Context()); shop != "" {
		return shop, nil
	}
	return r.RemoteAddr, nil
}

// adminMetricsAuth protects /metrics with a bearer key. An empty key leaves
// the endpoint open, for scrapers inside the network boundary.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "invalid or missing metrics API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
