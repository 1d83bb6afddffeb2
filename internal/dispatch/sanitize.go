package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sanitize strips control characters, collapses whitespace runs to a single
// space, and clamps the result to maxBytes on a rune boundary. maxBytes <= 0
// disables the clamp.
func Sanitize(s string, maxBytes int) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	out := b.String()
	if maxBytes > 0 && len(out) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut])
	}
	return out
}
