// Package reply sanitizes generated model text before it is handed to the
// messaging platform, which renders plain text only.
package reply

import (
	"regexp"
	"strings"
)

var (
	emphasisPattern   = regexp.MustCompile(`\*{1,2}([^*]*?)\*{1,2}`)
	inlineCodePattern = regexp.MustCompile("`{1,3}([^`]*?)`{1,3}")
	headingPattern    = regexp.MustCompile(`#`)
)

// Format strips markdown emphasis, inline-code delimiters, and heading
// markers, then trims surrounding whitespace. Idempotent: formatting already
// formatted text is a no-op.
func Format(text string) string {
	text = emphasisPattern.ReplaceAllString(text, "$1")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
