// Package security cleans user-entered text before it reaches the store.
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"storyfeed/internal/feed"
)

// TextSanitizer strips every HTML element and attribute from story and
// comment text. The result is plain text: entities the policy escapes are
// turned back into characters and surrounding whitespace is trimmed.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

var _ feed.TextSanitizer = (*TextSanitizer)(nil)

// NewTextSanitizer creates a sanitizer using bluemonday's strict policy.
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize returns text with all markup removed.
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}
