package grading

import "strings"

// Compare reports whether the produced output matches the expected output.
// Both sides are whitespace-trimmed; no numeric tolerance is applied. SQL output
// is a compact JSON string, so the same strict equality applies.
func Compare(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}
