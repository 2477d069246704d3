package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalization rules are shared by pool deduplication, lead lookup on
// inbound events, and outbound dialing: strip everything that is not a
// digit and require 7-15 digits.

var ErrInvalid = errors.New("phone: invalid number")

// Normalize strips all non-digit characters.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate normalizes raw and checks the digit-count bounds.
func Validate(raw string) (string, error) {
	n := Normalize(raw)
	if len(n) < 7 || len(n) > 15 {
		return "", ErrInvalid
	}
	return n, nil
}

// FormatE164 renders raw in E.164 for the given ISO country code.
// Falls back to the digit-stripped form when parsing fails or the
// country is unknown; callers must not use the result as a dedupe key.
func FormatE164(raw, country string) string {
	if country == "" {
		return Normalize(raw)
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(country))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return Normalize(raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
