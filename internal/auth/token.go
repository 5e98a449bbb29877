// Package auth issues and verifies the session tokens that protect the
// admin API. A token carries the shop domain and an expiry, signed with
// HMAC-SHA256; there is no server-side session state to look up.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed tokens and signature mismatches.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

type claims struct {
	Shop      string `json:"shop"`
	ExpiresAt int64  `json:"exp"`
}

// Issuer mints and verifies admin session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an issuer signing with the given secret. The TTL bounds
// how long an issued token stays valid.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the shop domain.
func (i *Issuer) Issue(shopDomain string) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("auth: signing secret not configured")
	}
	payload, err := json.Marshal(claims{
		Shop:      shopDomain,
		ExpiresAt: time.Now().Add(i.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("auth: encode claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + i.sign(encoded), nil
}

// Verify checks the signature and expiry and returns the shop domain.
func (i *Issuer) Verify(token string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrTokenInvalid
	}
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return "", ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(i.sign(encoded)), []byte(sig)) != 1 {
		return "", ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrTokenInvalid
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil || c.Shop == "" {
		return "", ErrTokenInvalid
	}
	if time.Now().Unix() >= c.ExpiresAt {
		return "", ErrTokenExpired
	}
	return c.Shop, nil
}

func (i *Issuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
