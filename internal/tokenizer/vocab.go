// Package tokenizer maps phoneme strings to model token ids.
package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrVocabularyFormat marks a malformed vocabulary file.
var ErrVocabularyFormat = errors.New("malformed vocabulary")

// Vocabulary is an immutable phoneme -> id table.
type Vocabulary struct {
	ids map[string]int64
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t")

// LoadVocabulary reads a "token<TAB>id" file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	v, err := ReadVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return v, nil
}

// ReadVocabulary parses vocabulary lines from r. The token is everything
// before the last tab with \n, \r and \t escapes expanded; blank lines are
// skipped.
func ReadVocabulary(r io.Reader) (*Vocabulary, error) {
	v := &Vocabulary{ids: make(map[string]int64)}

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		tab := strings.LastIndexByte(line, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("%w: line %d: missing tab", ErrVocabularyFormat, lineNo)
		}

		id, err := strconv.ParseInt(strings.TrimSpace(line[tab+1:]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad id: %v", ErrVocabularyFormat, lineNo, err)
		}

		token := unescaper.Replace(line[:tab])
		if _, dup := v.ids[token]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate token %q", ErrVocabularyFormat, lineNo, token)
		}

		v.ids[token] = id
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	if len(v.ids) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrVocabularyFormat)
	}

	return v, nil
}

// NewVocabulary builds a vocabulary from a map, mostly for tests.
func NewVocabulary(ids map[string]int64) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int64, len(ids))}
	for k, id := range ids {
		v.ids[k] = id
	}

	return v
}

// Lookup returns the id for token.
func (v *Vocabulary) Lookup(token string) (int64, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int { return len(v.ids) }
