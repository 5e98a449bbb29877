package validate

import (
	"strings"
	"testing"
)

func TestIsShopDomain(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"example.myshopify.com", true},
		{"my-store-2.myshopify.com", true},
		{"a.myshopify.com", true},
		{"-leading.myshopify.com", false},
		{"example.shopify.com", false},
		{"example.myshopify.com.evil.com", false},
		{"sub.example.myshopify.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsShopDomain(tt.input); got != tt.want {
			t.Errorf("IsShopDomain(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsCheckoutToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"32 chars", strings.Repeat("a", 32), true},
		{"64 chars", strings.Repeat("Z9", 32), true},
		{"31 chars", strings.Repeat("a", 31), false},
		{"65 chars", strings.Repeat("a", 65), false},
		{"non-alphanumeric", strings.Repeat("a", 31) + "-", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCheckoutToken(tt.input); got != tt.want {
				t.Errorf("IsCheckoutToken(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"buyer@example.com", true},
		{"buyer+tag@example.co.uk", true},
		{"not-an-email", false},
		{"", false},
		{"Buyer <buyer@example.com>", false},
	}
	for _, tt := range tests {
		if got := IsEmail(tt.input); got != tt.want {
			t.Errorf("IsEmail(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestProviderIDs(t *testing.T) {
	if !IsPaymentIntentID("pi_3abc123") {
		t.Error("expected pi_3abc123 to be a valid intent id")
	}
	if IsPaymentIntentID("pm_card") || IsPaymentIntentID("pi_") {
		t.Error("rejected intent ids accepted")
	}
	if !IsPaymentMethodID("pm_card_visa") {
		t.Error("expected pm_card_visa to be a valid method id")
	}
	if IsPaymentMethodID("pi_3abc") || IsPaymentMethodID("pm_") {
		t.Error("rejected method ids accepted")
	}
}

func TestSplitAmounts(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		amounts []int64
		wantErr bool
	}{
		{name: "two cards exact", total: 10000, amounts: []int64{7000, 3000}},
		{name: "five cards exact", total: 500, amounts: []int64{100, 100, 100, 100, 100}},
		{name: "one card", total: 100, amounts: []int64{100}, wantErr: true},
		{name: "six cards", total: 600, amounts: []int64{100, 100, 100, 100, 100, 100}, wantErr: true},
		{name: "below minimum", total: 10099, amounts: []int64{10000, 99}, wantErr: true},
		{name: "sum mismatch", total: 10000, amounts: []int64{7000, 2000}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SplitAmounts(tt.total, tt.amounts, 100, 5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitAmounts(%d, %v) error = %v, wantErr %v", tt.total, tt.amounts, err, tt.wantErr)
			}
		})
	}
}

func TestIsIP(t *testing.T) {
	if !IsIP("203.0.113.9") || !IsIP("2001:db8::1") {
		t.Error("valid addresses rejected")
	}
	if IsIP("not.an.ip") || IsIP("") {
		t.Error("invalid addresses accepted")
	}
}
