package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal makes server-supplied text safe to draw with tview.
// Control characters other than newline and tab are dropped so a message
// cannot move the cursor or inject escape sequences. Skin tone modifiers,
// zero width joiners and variation selectors are dropped because tcell
// renders multi-codepoint emoji with the wrong cell width.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
