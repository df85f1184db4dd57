// Package htmlsanitize strips markup from short user-supplied text such as
// page and menu titles. Page bodies are raw Markdown and are never touched
// here; rendering them safely belongs to the presentation layer.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// policy removes every element, keeping only text content.
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText removes all HTML elements from s and returns the remaining
// text unescaped, with whitespace runs collapsed.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	stripped := getPolicy().Sanitize(s)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// HasMarkup reports whether s contains anything PlainText would remove.
func HasMarkup(s string) bool {
	return PlainText(s) != strings.Join(strings.Fields(s), " ")
}
