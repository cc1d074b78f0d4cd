// Package email holds small helpers for presenting contacts in mail.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail guesses first and last names from an address local part,
// e.g. "jane.doe@agency.gov" gives ("Jane", "Doe").
func DeriveNameFromEmail(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}

	first := capitalize(parts[0])
	last := ""
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

// DisplayName joins first and last name, falling back to names derived from the address.
func DisplayName(first, last, address string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" && last == "" {
		first, last = DeriveNameFromEmail(address)
	}
	return strings.TrimSpace(first + " " + last)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
