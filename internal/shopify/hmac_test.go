package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/splitpay/server/internal/config"
)

func newTestClient(secret string) *Client {
	return NewClient(config.ShopifyConfig{APIKey: "key", APISecret: secret, APIVersion: "2024-01"}, nil, nil)
}

func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookHMAC(t *testing.T) {
	c := newTestClient("shh")
	body := []byte(`{"id":12345,"domain":"demo.myshopify.com"}`)

	if !c.VerifyWebhookHMAC(body, signWebhook("shh", body)) {
		t.Error("valid signature rejected")
	}
	if c.VerifyWebhookHMAC(body, signWebhook("wrong", body)) {
		t.Error("signature from wrong secret accepted")
	}
	if c.VerifyWebhookHMAC(body, "") {
		t.Error("empty signature accepted")
	}
	if c.VerifyWebhookHMAC([]byte(`{"id":9}`), signWebhook("shh", body)) {
		t.Error("tampered body accepted")
	}
}

func TestVerifyWebhookHMACNoSecret(t *testing.T) {
	c := newTestClient("")
	body := []byte("{}")
	if c.VerifyWebhookHMAC(body, signWebhook("", body)) {
		t.Error("verification must fail closed without a secret")
	}
}

func TestVerifyOAuthHMAC(t *testing.T) {
	c := newTestClient("shh")

	q := url.Values{}
	q.Set("shop", "demo.myshopify.com")
	q.Set("code", "abc123")
	q.Set("timestamp", "1700000000")
	q.Set("state", "nonce")

	// Signed message is the sorted remaining params.
	message := "code=abc123&shop=demo.myshopify.com&state=nonce&timestamp=1700000000"
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte(message))
	q.Set("hmac", hex.EncodeToString(mac.Sum(nil)))

	if !c.VerifyOAuthHMAC(q) {
		t.Error("valid callback signature rejected")
	}

	q.Set("shop", "evil.myshopify.com")
	if c.VerifyOAuthHMAC(q) {
		t.Error("tampered callback accepted")
	}

	q.Del("hmac")
	if c.VerifyOAuthHMAC(q) {
		t.Error("callback without hmac accepted")
	}
}
