// Package sanitize cleans free-text fields that arrive from the CRM before
// they are stored or echoed into notifications.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup, including tags hidden behind entities.
func StripHTML(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = html.UnescapeString(out)
	return tagPattern.ReplaceAllString(out, "")
}

// Label normalizes a short routing label such as a region or specialty:
// markup is stripped and runs of whitespace collapse to one space.
func Label(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(StripHTML(s), " "))
}

// Text strips markup from longer user text and trims the ends.
func Text(s string) string {
	return strings.TrimSpace(StripHTML(s))
}
