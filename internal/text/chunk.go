package text

import (
	"strings"
	"unicode/utf8"
)

// ChunkBySentence groups sentences into chunks of at most maxChars runes so
// each chunk fits the model's fixed token window. A sentence longer than
// maxChars is kept whole. maxChars <= 0 disables splitting.
func ChunkBySentence(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		runes   int
	)

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		switch {
		case runes == 0:
			current.WriteString(s)
			runes = n
		case runes+1+n > maxChars:
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(s)
			runes = n
		default:
			current.WriteByte(' ')
			current.WriteString(s)
			runes += 1 + n
		}
	}

	if runes > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	default:
		return false
	}
}

// splitSentences keeps each terminator run attached to its sentence, so
// "Wait?!" stays one sentence.
func splitSentences(text string) []string {
	var sentences []string

	start := 0
	prevEnd := false

	for i, r := range text {
		end := isSentenceEnd(r)
		if prevEnd && !end {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				sentences = append(sentences, s)
			}

			start = i
		}

		prevEnd = end
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
