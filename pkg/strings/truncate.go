package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the default maximum length for single-line
// values in table output (selectors, error messages).
const DefaultDescriptionMaxLen = 60

// MinTruncateLen is the minimum maxLen value for TruncateDescription.
const MinTruncateLen = 4

// TruncateDescription collapses whitespace into single spaces and cuts the
// result to maxLen runes, ending with "..." when something was removed.
// maxLen values below MinTruncateLen are clamped.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Truncate keeps the first n runes of s and appends "..." when s was longer.
// Unlike TruncateDescription it keeps the original whitespace, so multi-line
// error messages stay readable in tracker comments.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
