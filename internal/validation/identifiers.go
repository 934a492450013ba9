// Package validation contains input predicates for purchase identifiers.
package validation

import "unicode"

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

// IsValidPhone checks a Nigerian MSISDN: 11 digits starting with 0, or the
// international 234 form with 13 digits.
func IsValidPhone(phone string) bool {
	if !digitsOnly(phone) {
		return false
	}
	switch len(phone) {
	case 11:
		return phone[0] == '0'
	case 13:
		return phone[0:3] == "234"
	}
	return false
}

// IsValidSmartcard checks a cable smartcard/IUC number: 10 to 12 digits.
func IsValidSmartcard(number string) bool {
	return digitsOnly(number) && len(number) >= 10 && len(number) <= 12
}

// IsValidMeterNumber checks an electricity meter number: 6 to 13 digits.
func IsValidMeterNumber(number string) bool {
	return digitsOnly(number) && len(number) >= 6 && len(number) <= 13
}
