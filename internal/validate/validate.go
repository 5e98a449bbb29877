// Package validate holds the pure input validators applied at every API
// boundary before any state is touched.
package validate

import (
	"fmt"
	"net"
	"net/mail"
	"regexp"
	"strings"
)

var (
	shopDomainRe    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)
	checkoutTokenRe = regexp.MustCompile(`^[a-zA-Z0-9]{32,64}$`)
)

// IsShopDomain reports whether s is a well-formed *.myshopify.com domain.
func IsShopDomain(s string) bool {
	return shopDomainRe.MatchString(s)
}

// IsCheckoutToken reports whether s is a well-formed checkout token:
// 32 to 64 alphanumeric characters.
func IsCheckoutToken(s string) bool {
	return checkoutTokenRe.MatchString(s)
}

// IsEmail reports whether s parses as an RFC 5322 address.
func IsEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// IsIP reports whether s is a valid IPv4 or IPv6 address.
func IsIP(s string) bool {
	return net.ParseIP(s) != nil
}

// IsPaymentIntentID reports whether s carries the provider's payment intent
// prefix.
func IsPaymentIntentID(s string) bool {
	return strings.HasPrefix(s, "pi_") && len(s) > len("pi_")
}

// IsPaymentMethodID reports whether s carries the provider's payment method
// prefix.
func IsPaymentMethodID(s string) bool {
	return strings.HasPrefix(s, "pm_") && len(s) > len("pm_")
}

// Amount checks a single card amount in cents against the store's floor.
func Amount(cents, minCents int64) error {
	if cents < minCents {
		return fmt.Errorf("amount %d below minimum %d", cents, minCents)
	}
	return nil
}

// SplitAmounts checks a full split: 2 to maxCards amounts, each at or above
// minCents, summing exactly to total.
func SplitAmounts(total int64, amounts []int64, minCents int64, maxCards int) error {
	if len(amounts) < 2 {
		return fmt.Errorf("split requires at least 2 cards, got %d", len(amounts))
	}
	if len(amounts) > maxCards {
		return fmt.Errorf("split allows at most %d cards, got %d", maxCards, len(amounts))
	}
	var sum int64
	for i, a := range amounts {
		if a < minCents {
			return fmt.Errorf("card %d amount %d below minimum %d", i, a, minCents)
		}
		sum += a
	}
	if sum != total {
		return fmt.Errorf("split amounts sum to %d, want %d", sum, total)
	}
	return nil
}
