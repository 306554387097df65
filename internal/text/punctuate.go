package text

import (
	"strings"
)

// DefaultMarks is the punctuation set split off by NewPunctuator("").
const DefaultMarks = `;:,.!?¡¿—…"«»“”(){}[]`

// Segment is a run of text followed by at most one punctuation mark.
// Either field may be empty, but never both.
type Segment struct {
	Text string
	Mark string
}

// Punctuator splits text into segments at punctuation marks so the marks can
// be reattached after phonemization.
type Punctuator struct {
	marks map[rune]struct{}
}

// NewPunctuator returns a Punctuator for the given mark set. An empty set
// selects DefaultMarks.
func NewPunctuator(marks string) *Punctuator {
	if marks == "" {
		marks = DefaultMarks
	}

	p := &Punctuator{marks: make(map[rune]struct{}, len(marks))}
	for _, r := range marks {
		p.marks[r] = struct{}{}
	}

	return p
}

// IsMark reports whether r is in the punctuator's mark set.
func (p *Punctuator) IsMark(r rune) bool {
	_, ok := p.marks[r]
	return ok
}

// Split returns the ordered segments of s. A mark attaches to the preceding
// segment when that segment has no mark yet; otherwise it starts a segment
// with empty text. Join(p.Split(s)) == s for every s.
func (p *Punctuator) Split(s string) []Segment {
	var (
		out   []Segment
		start = -1
	)

	flush := func(end int) {
		if start >= 0 {
			out = append(out, Segment{Text: s[start:end]})
			start = -1
		}
	}

	for i, r := range s {
		if !p.IsMark(r) {
			if start < 0 {
				start = i
			}

			continue
		}

		flush(i)

		mark := string(r)
		if n := len(out); n > 0 && out[n-1].Mark == "" {
			out[n-1].Mark = mark
		} else {
			out = append(out, Segment{Mark: mark})
		}
	}

	flush(len(s))

	return out
}

// Clauses splits s after each punctuation mark into trimmed, non-empty
// pieces. A bare closing mark stays with the clause before it and a bare
// opening mark moves to the clause after it, so joining the pieces with
// single spaces keeps every mark.
func (p *Punctuator) Clauses(s string) []string {
	var (
		out     []string
		pending string
	)

	for _, seg := range p.Split(s) {
		piece := seg.Text + seg.Mark

		if strings.TrimSpace(seg.Text) == "" {
			if len(out) > 0 && !isOpeningMark(seg.Mark) && pending == "" {
				out[len(out)-1] += seg.Mark
				continue
			}

			pending += seg.Mark
			continue
		}

		if piece = strings.TrimSpace(pending + piece); piece != "" {
			out = append(out, piece)
		}
		pending = ""
	}

	if pending != "" {
		if len(out) > 0 {
			out[len(out)-1] += pending
		} else {
			out = append(out, pending)
		}
	}

	return out
}

func isOpeningMark(mark string) bool {
	switch mark {
	case "(", "[", "{", "«", "“", "¿", "¡":
		return true
	default:
		return false
	}
}

// Join concatenates segments back into text.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.Text)
		b.WriteString(seg.Mark)
	}

	return b.String()
}
