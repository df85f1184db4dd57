// Package slugs generates and validates page slugs.
//
// A slug is lowercase ASCII letters, digits, '-' and '_', never starting or
// ending with a separator, at most MaxLen bytes.
package slugs

import (
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

// MaxLen is the longest slug accepted.
const MaxLen = 200

// Fallback is used when a title yields no slug characters at all.
const Fallback = "page"

// reserved names are fixed routes beside /api/pages/{slug}.
var reserved = map[string]struct{}{
	"search": {},
}

// Make derives a slug from a page title.
func Make(title string) string {
	s := truncate(slug.Make(title), MaxLen)
	if s == "" {
		return Fallback
	}
	return s
}

// Normalize prepares a client-supplied slug for validation.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// WellFormed reports whether s uses only slug characters and fits MaxLen.
func WellFormed(s string) bool {
	return len(s) <= MaxLen && slug.IsSlug(s)
}

// Reserved reports whether s would be shadowed by a fixed route.
func Reserved(s string) bool {
	_, ok := reserved[s]
	return ok
}

// Valid reports whether s is an acceptable page slug.
func Valid(s string) bool {
	return WellFormed(s) && !Reserved(s)
}

// WithSuffix returns base with "-n" appended, shortening base so the result
// stays within MaxLen.
func WithSuffix(base string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	return truncate(base, MaxLen-len(suffix)) + suffix
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimRight(s[:max], "-_")
}
