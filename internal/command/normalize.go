package command

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts text into its canonical comparable form: Unicode
// decomposed with combining marks removed, lowercased, every character outside
// [a-z0-9] replaced by a space, and whitespace runs collapsed and trimmed.
//
// Normalize is pure and idempotent. An empty input yields an empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Chain carries state, so a fresh chain is built per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}

	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, strings.ToLower(stripped))

	return strings.Join(strings.Fields(mapped), " ")
}
