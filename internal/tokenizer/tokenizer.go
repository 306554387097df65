package tokenizer

// Sentinel is the id placed at both ends of every sequence.
const Sentinel int64 = 0

// SplitGraphemes cuts s into units using the UTF-8 leading byte to decide each
// unit's length. A truncated trailing sequence yields a shorter last unit.
func SplitGraphemes(s string) []string {
	out := make([]string, 0, len(s))

	for i := 0; i < len(s); {
		n := leadLen(s[i])
		if i+n > len(s) {
			n = len(s) - i
		}

		out = append(out, s[i:i+n])
		i += n
	}

	return out
}

func leadLen(c byte) int {
	switch {
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

// Encode maps each grapheme of phonemes to its id and wraps the result in
// Sentinel. Graphemes missing from the vocabulary are dropped; the second
// return value counts them.
func (v *Vocabulary) Encode(phonemes string) ([]int64, int) {
	units := SplitGraphemes(phonemes)
	ids := make([]int64, 0, len(units)+2)
	ids = append(ids, Sentinel)

	skipped := 0
	for _, u := range units {
		id, ok := v.ids[u]
		if !ok {
			skipped++
			continue
		}

		ids = append(ids, id)
	}

	return append(ids, Sentinel), skipped
}

// Truncate shortens ids to maxLen while keeping the closing Sentinel. It
// reports whether anything was cut.
func Truncate(ids []int64, maxLen int) ([]int64, bool) {
	if maxLen < 2 || len(ids) <= maxLen {
		return ids, false
	}

	out := append([]int64(nil), ids[:maxLen-1]...)

	return append(out, Sentinel), true
}
