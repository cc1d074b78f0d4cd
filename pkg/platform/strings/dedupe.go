// Package strings provides string list helpers used for recipient handling.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  ops@x ", "a@x", "ops@x", ""}) // []string{"ops@x", "a@x"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}

// FoldSet remembers values case-insensitively across several lists.
type FoldSet map[string]struct{}

// Take trims the values and returns those not already in the set, keeping the
// first spelling seen and the input order. Returned values are added to the set,
// so a value taken for an earlier list is dropped from every later one.
func (s FoldSet) Take(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := s[key]; ok {
			continue
		}
		s[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList parses a comma separated configuration value.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}
