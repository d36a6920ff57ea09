package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultPreviewLength is the summary length when none is requested.
const DefaultPreviewLength = 300

const ellipsis = "…"

var (
	fencedCode   = regexp.MustCompile("(?ms)^[ \t]*(```|~~~)[^\n]*\n.*?^[ \t]*(```|~~~)[ \t]*$")
	indentedCode = regexp.MustCompile(`(?m)^(?:    |\t).*$`)
	image        = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	link         = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	refLink      = regexp.MustCompile(`\[([^\]]*)\]\[[^\]]*\]`)
	heading      = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	blockquote   = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	listMarker   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`)
	rule         = regexp.MustCompile(`(?m)^[ \t]*(?:[-*_][ \t]*){3,}$`)
	emphasis     = regexp.MustCompile(`(\*\*|__|~~|\*|_)`)
	inlineCode   = regexp.MustCompile("`([^`]*)`")
	whitespace   = regexp.MustCompile(`\s+`)

	stripPolicy = bluemonday.StrictPolicy()
)

// Strip reduces markdown to plain text: code blocks and images disappear,
// links keep their text, and structural markers are removed.
func Strip(src string) string {
	s := strings.ReplaceAll(src, "\r\n", "\n")
	s = fencedCode.ReplaceAllString(s, "")
	s = indentedCode.ReplaceAllString(s, "")
	s = image.ReplaceAllString(s, "")
	s = link.ReplaceAllString(s, "$1")
	s = refLink.ReplaceAllString(s, "$1")
	s = rule.ReplaceAllString(s, "")
	s = heading.ReplaceAllString(s, "")
	s = blockquote.ReplaceAllString(s, "")
	s = listMarker.ReplaceAllString(s, "")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = emphasis.ReplaceAllString(s, "")
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Summarize strips src and truncates it to limit runes. The cut moves back to
// the last space when that space lies within the final fifth of the limit.
func Summarize(src string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLength
	}
	return Truncate(Strip(src), limit)
}

// Truncate cuts plain text to limit runes at a word boundary where possible.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := runes[:limit]
	threshold := limit * 4 / 5
	for i := len(cut) - 1; i >= threshold; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ") + ellipsis
}
