package g2p

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// lexicon is an offline word-to-phoneme dictionary. Entries are expected to
// already use the model's phoneme inventory.
type lexicon struct {
	words map[string]string
}

func newLexicon(opts Options) (*lexicon, error) {
	l := &lexicon{words: make(map[string]string, len(opts.Lexicon))}

	if opts.ResourcePath != "" {
		if err := l.load(opts.ResourcePath); err != nil {
			return nil, err
		}
	}

	for w, ps := range opts.Lexicon {
		l.words[strings.ToLower(w)] = ps
	}

	if len(l.words) == 0 {
		return nil, fmt.Errorf("%w: lexicon has no entries", ErrBackendUnavailable)
	}

	return l, nil
}

// load reads "word<TAB>phonemes" lines. Blank lines and lines starting with
// '#' are ignored.
func (l *lexicon) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open lexicon: %v", ErrBackendUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		word, ps, ok := strings.Cut(line, "\t")
		if !ok || word == "" {
			return fmt.Errorf("lexicon %s:%d: expected word<TAB>phonemes", path, lineNo)
		}

		l.words[strings.ToLower(word)] = strings.TrimSpace(ps)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read lexicon: %w", err)
	}

	return nil
}

func (l *lexicon) Kind() Kind { return KindLexicon }

// Phonemize looks up each word. Words missing from the dictionary are spelled
// with their lowercase letters.
func (l *lexicon) Phonemize(_ context.Context, segment, _ string) (string, error) {
	words := strings.FieldsFunc(segment, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if ps, ok := l.words[lw]; ok {
			out = append(out, ps)
			continue
		}

		out = append(out, lw)
	}

	return strings.Join(out, " "), nil
}

func (l *lexicon) Close() error { return nil }
