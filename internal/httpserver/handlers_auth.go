package httpserver

import (
	"net/http"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/internal/validate"
	"github.com/splitpay/server/pkg/responders"
)

// authInstall starts the OAuth handshake by redirecting the merchant to the
// platform's consent screen. The state parameter is a signed token so the
// callback can verify it without server-side state.
func (h handlers) authInstall(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if !validate.IsShopDomain(shop) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidShop, "shop must be a myshopify.com domain")
		return
	}

	state, err := h.tokens.Issue(shop)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("auth.install.state_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	redirectURI := h.cfg.Server.AppURL + "/api/auth/callback"
	http.Redirect(w, r, h.shopify.InstallURL(shop, redirectURI, state), http.StatusFound)
}

// authCallback finishes the OAuth handshake: it verifies the platform's
// HMAC and our state token, exchanges the code for an access token, and
// records the installation.
func (h handlers) authCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	query := r.URL.Query()

	shop := query.Get("shop")
	code := query.Get("code")
	if !validate.IsShopDomain(shop) || code == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "shop and code are required")
		return
	}
	if !h.shopify.VerifyOAuthHMAC(query) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "OAuth signature verification failed")
		return
	}
	stateShop, err := h.tokens.Verify(query.Get("state"))
	if err != nil || stateShop != shop {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "state parameter is invalid")
		return
	}

	accessToken, err := h.shopify.ExchangeOAuthCode(r.Context(), shop, code)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("auth.callback.exchange_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "token exchange failed")
		return
	}

	if _, err := h.store.UpsertShop(r.Context(), storage.Shop{
		ShopDomain:  shop,
		AccessToken: accessToken,
		Active:      true,
	}); err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("auth.callback.upsert_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	sessionToken, err := h.tokens.Issue(shop)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("auth.callback.token_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	log.Info().Str("shop", shop).Msg("auth.installed")
	responders.JSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"shop":          shop,
		"session_token": sessionToken,
	})
}
