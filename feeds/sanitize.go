package feeds

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans markup coming from remote feeds
type Sanitizer struct {
	markup *bluemonday.Policy
	text   *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	// Use UGCPolicy as base (allows p, a, strong, em, etc.)
	p := bluemonday.UGCPolicy()

	// Enforce nofollow and target=_blank on links
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		markup: p,
		text:   bluemonday.StrictPolicy(),
	}
}

// Markup returns a safe HTML fragment
func (s *Sanitizer) Markup(raw string) string {
	return strings.TrimSpace(s.markup.Sanitize(raw))
}

// Text strips every tag and returns plain text
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(raw)))
}
