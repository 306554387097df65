package text

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// cjkPunctuation covers the CJK marks outside the fullwidth ASCII block.
var cjkPunctuation = strings.NewReplacer(
	"。", ".",
	"！", "!",
	"？", "?",
	"；", ";",
	"，", ",",
	"、", ",",
	"：", ":",
	"＂", "\"",
	"＇", "'",
	"（", "(",
	"）", ")",
	"【", "[",
	"】", "]",
	"《", "<",
	"》", ">",
	"　", " ",
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Clean maps fullwidth punctuation, letters and digits to their ASCII
// equivalents, collapses whitespace runs to one space, trims both ends and
// drops control bytes other than \n, \r and \t.
func Clean(s string) string {
	s = cjkPunctuation.Replace(s)
	s = strings.Map(narrowFullwidthASCII, s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return dropControlBytes(s)
}

// narrowFullwidthASCII maps the fullwidth forms of printable ASCII
// (U+FF01..U+FF5E) to ASCII. Halfwidth katakana, fullwidth currency signs
// and every other rune are left as they are.
func narrowFullwidthASCII(r rune) rune {
	if r < '\uFF01' || r > '\uFF5E' {
		return r
	}

	if n := width.LookupRune(r).Narrow(); n != 0 {
		return n
	}

	return r
}

func dropControlBytes(s string) string {
	keep := true
	for i := 0; i < len(s); i++ {
		if isDroppedByte(s[i]) {
			keep = false
			break
		}
	}

	if keep {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if !isDroppedByte(s[i]) {
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

func isDroppedByte(c byte) bool {
	return c < 0x20 && c != '\n' && c != '\r' && c != '\t'
}
