package payment

import (
	"errors"
	"regexp"
)

// Issuer number-range patterns, matched against the first four digits.
var (
	visaPrefix       = regexp.MustCompile(`^4[0-9]{3}$`)
	mastercardPrefix = regexp.MustCompile(`^(5[1-5][0-9]{2}|222[1-9]|22[3-9][0-9]|2[3-6][0-9]{2}|27[0-1][0-9]|2720)$`)
	decimalOnly      = regexp.MustCompile(`^[0-9]+$`)
)

// ErrInvalidCard is the fixed message returned for any card number failure.
var ErrInvalidCard = errors.New("Card number is invalid.")

func luhnCheck(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func iinCheck(number string) bool {
	if len(number) < 4 {
		return false
	}
	prefix := number[:4]
	return visaPrefix.MatchString(prefix) || mastercardPrefix.MatchString(prefix)
}

// ValidCard reports whether number is all-decimal, passes the Luhn check and
// carries a recognized Visa or Mastercard prefix. Pure function, no network.
func ValidCard(number string) bool {
	return decimalOnly.MatchString(number) && luhnCheck(number) && iinCheck(number)
}

func ValidateCard(number string) error {
	if !ValidCard(number) {
		return ErrInvalidCard
	}
	return nil
}
