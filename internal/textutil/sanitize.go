package textutil

import (
	"strings"
	"unicode"
)

// Slug joins parts into a lowercase filesystem-safe name. Letters (including
// CJK) and digits are kept, runs of anything else collapse to one dash, and
// blank parts are skipped. Returns "untitled" when nothing survives.
func Slug(parts ...string) string {
	var b strings.Builder
	dash := false
	for _, part := range parts {
		for _, r := range strings.TrimSpace(part) {
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				if dash && b.Len() > 0 {
					b.WriteByte('-')
				}
				dash = false
				b.WriteRune(unicode.ToLower(r))
			default:
				dash = true
			}
		}
		dash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}
