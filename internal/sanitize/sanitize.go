// Package sanitize strips markup from free text typed into CRM forms.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy removes every tag; the CRM stores plain text only.
var policy = bluemonday.StrictPolicy()

// Text returns s with all HTML removed and surrounding space trimmed.
// Entities bluemonday escapes are decoded back so "R&D" stays "R&D".
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

// Ptr applies Text to an optional value.
func Ptr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := Text(*s)
	return &clean
}
