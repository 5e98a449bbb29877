// Package money implements integer-cent arithmetic for split payments.
// All monetary amounts in the system are non-negative int64 cent values;
// floating point never touches money.
package money

import (
	"fmt"
	"strings"
)

// Distribute splits total proportionally across weights, returning integer
// shares that sum exactly to total. Each share is rounded half-up from
// total*w/sum(weights); the rounding remainder is applied to the slot with
// the largest weight (first one on ties). Shares never go negative: if the
// remainder overdraws the largest slot, the deficit is borrowed from other
// positive slots.
//
// A zero total, empty weights, or a non-positive weight sum yields all
// zeros.
func Distribute(total int64, weights []int64) []int64 {
	out := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}

	var sum int64
	maxIdx := 0
	for i, w := range weights {
		sum += w
		if w > weights[maxIdx] {
			maxIdx = i
		}
	}
	if sum <= 0 {
		return out
	}

	var allocated int64
	for i, w := range weights {
		share := (total*w + sum/2) / sum
		out[i] = share
		allocated += share
	}

	out[maxIdx] += total - allocated

	for i := 0; out[maxIdx] < 0 && i < len(out); i++ {
		if i == maxIdx || out[i] <= 0 {
			continue
		}
		move := out[i]
		if deficit := -out[maxIdx]; move > deficit {
			move = deficit
		}
		out[i] -= move
		out[maxIdx] += move
	}

	return out
}

// Sum returns the total of the given cent amounts.
func Sum(amounts []int64) int64 {
	var total int64
	for _, a := range amounts {
		total += a
	}
	return total
}

// ParseDecimal converts a decimal money string such as "150.00" or "7.5"
// into cents. At most two fractional digits are accepted; the value must be
// non-negative.
func ParseDecimal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount %q", s)
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var cents int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("malformed amount %q", s)
			}
			cents = cents*10 + int64(c-'0')
		}
	}
	return cents, nil
}

// FormatCents renders cents as a decimal string with two fractional digits,
// e.g. 12345 -> "123.45".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
