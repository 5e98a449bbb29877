package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// VerifyWebhookHMAC checks the X-Shopify-Hmac-Sha256 header against the
// raw request body. The header is base64 of HMAC-SHA256 over the body
// keyed with the app's API secret.
func (c *Client) VerifyWebhookHMAC(body []byte, headerValue string) bool {
	if headerValue == "" || c.cfg.APISecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

// VerifyOAuthHMAC checks the hmac query parameter on the OAuth callback.
// The signed message is the remaining query parameters sorted by key, and
// the signature is hex rather than base64.
func (c *Client) VerifyOAuthHMAC(query url.Values) bool {
	provided := query.Get("hmac")
	if provided == "" || c.cfg.APISecret == "" {
		return false
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+query.Get(k))
	}
	message := strings.Join(pairs, "&")

	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
