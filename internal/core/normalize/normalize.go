package normalize

import (
	"strings"
	"unicode"
)

// Normalize aligns decimal separators and flattens layout before field extraction:
// every comma becomes a period, then each whitespace run (newlines included)
// becomes a single space. Thousands separators are not recognised, so "1,200"
// turns into "1.200"; the document locale is unknown at this point.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if isSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if r == ',' {
			r = '.'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isSpace matches unicode.IsSpace plus the ASCII information separators
// (0x1C-0x1F) that PDF text layers occasionally emit between columns.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
