package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	// Use for fields that should only contain plain text (titles, locations).
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated content with basic formatting.
	// Permits: <p>, <b>, <i>, <em>, <strong>, <a>, <ul>, <ol>, <li>, <br>
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags and returns plain text with entities decoded and
// runs of whitespace collapsed.
// Use for: event titles, locations, usernames.
func Text(input string) string {
	stripped := html.UnescapeString(StrictPolicy.Sanitize(input))
	return strings.Join(strings.Fields(stripped), " ")
}

// HTML sanitizes HTML content, allowing safe formatting tags.
// Use for: event descriptions.
// Removes: <script>, <iframe>, onclick handlers, style attributes.
func HTML(input string) string {
	return strings.TrimSpace(UGCPolicy.Sanitize(input))
}

// Title returns the canonical form of an event title: plain text, trimmed
// and lowercased, so uniqueness checks ignore case and markup.
func Title(input string) string {
	return strings.ToLower(Text(input))
}
