// Package slug turns titles and filenames into URL-safe identifiers.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	validSlug    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

const maxLength = 96

// Make normalizes s: diacritics are folded, everything outside [a-z0-9]
// becomes a single hyphen, and leading/trailing hyphens are trimmed.
func Make(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.NewReplacer("ß", "ss", "æ", "ae", "ø", "o", "đ", "d", "ł", "l", "&", " and ").Replace(folded)
	out := strings.Trim(nonSlugChars.ReplaceAllString(folded, "-"), "-")
	if len(out) > maxLength {
		out = strings.TrimRight(out[:maxLength], "-")
	}
	return out
}

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return validSlug.MatchString(s)
}
