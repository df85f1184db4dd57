// Package normalize provides helper functions for consistent string normalization
// across the application. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls to ensure consistent behavior.
package normalize

import "strings"

// Name normalizes a display name or title by trimming and collapsing
// internal whitespace runs to a single space.
// Use text.Fold() for case-insensitive comparison keys.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Role normalizes a role value by trimming whitespace and converting to lowercase.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Option normalizes an enumerated setting such as a retention or audit
// policy: trimmed and lowercased.
func Option(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ExternalID normalizes an identity provider subject. IDs are case
// sensitive, so only surrounding whitespace is removed.
func ExternalID(s string) string {
	return strings.TrimSpace(s)
}

// QueryParam normalizes a query parameter by trimming whitespace.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// List splits a comma-separated configuration value into trimmed,
// non-empty items.
func List(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
