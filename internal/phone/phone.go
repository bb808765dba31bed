// Package phone validates and normalizes campaign recipient numbers before
// they reach the messaging provider.
package phone

import (
	"strings"

	"github.com/chatsuite/backend/internal/apperrors"
)

// Local mobile numbers are 10 digits starting with 6-9; anything longer is
// assumed to already carry a country code.
const localLength = 10

// Normalize strips formatting, validates the number and prepends countryCode
// to bare local mobile numbers. Returns an apperrors.ValidationError with a
// stable reason when the number cannot be dispatched.
func Normalize(raw, countryCode string) (string, error) {
	digits := stripNonDigits(raw)

	if len(digits) < 10 || len(digits) > 15 {
		return "", apperrors.NewValidation(apperrors.ReasonInvalidLength)
	}
	if digits[0] == '0' {
		return "", apperrors.NewValidation(apperrors.ReasonLeadingZero)
	}
	if isPlaceholder(digits) {
		return "", apperrors.NewValidation(apperrors.ReasonPlaceholder)
	}

	if len(digits) == localLength && digits[0] >= '6' && digits[0] <= '9' {
		return countryCode + digits, nil
	}
	return digits, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isPlaceholder catches numbers that are obviously test data: a single
// repeated digit, or a strictly ascending/descending decimal run (wrapping,
// so 8901234567 and 2109876543 both count).
func isPlaceholder(digits string) bool {
	repeated, ascending, descending := true, true, true
	for i := 1; i < len(digits); i++ {
		prev, cur := digits[i-1]-'0', digits[i]-'0'
		if cur != prev {
			repeated = false
		}
		if cur != (prev+1)%10 {
			ascending = false
		}
		if cur != (prev+9)%10 {
			descending = false
		}
	}
	return repeated || ascending || descending
}
