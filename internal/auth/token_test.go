package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)

	token, err := issuer.Issue("demo.myshopify.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	shop, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if shop != "demo.myshopify.com" {
		t.Errorf("shop = %q, want demo.myshopify.com", shop)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue("demo.myshopify.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := map[string]string{
		"flipped payload": "x" + token,
		"no separator":    strings.ReplaceAll(token, ".", ""),
		"empty":           "",
		"garbage":         "not-a-token",
	}
	for name, tampered := range cases {
		if _, err := issuer.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("%s: err = %v, want ErrTokenInvalid", name, err)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a", time.Hour).Issue("demo.myshopify.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewIssuer("secret-b", time.Hour).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("secret", -time.Minute)
	token, err := issuer.Issue("demo.myshopify.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}
