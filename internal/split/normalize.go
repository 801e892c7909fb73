package split

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold normalizes text for marker comparison: NFKD decomposition, combining
// marks stripped, recomposed, lower-cased. "Rakstrarróknskapur" and
// "RAKSTRARROKNSKAPUR" both fold to "rakstrarroknskapur", so the boundary
// search is insensitive to diacritics, case and encoding form.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// containsFolded reports whether the folded haystack contains the folded
// needle.
func containsFolded(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
