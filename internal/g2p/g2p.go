// Package g2p converts text segments to phoneme strings in the model's
// phoneme inventory.
package g2p

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind selects one of the built-in backends.
type Kind int

const (
	// KindEspeak shells out to espeak-ng for IPA output.
	KindEspeak Kind = iota
	// KindLexicon looks words up in a tab-separated pronunciation dictionary.
	KindLexicon
)

func (k Kind) String() string {
	switch k {
	case KindEspeak:
		return "espeak"
	case KindLexicon:
		return "lexicon"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a config string to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "espeak", "espeak-ng":
		return KindEspeak, nil
	case "lexicon", "dict":
		return KindLexicon, nil
	default:
		return 0, fmt.Errorf("unknown g2p backend %q (want espeak|lexicon)", raw)
	}
}

var (
	// ErrBackendUnavailable is returned when a backend's external resources
	// cannot be found.
	ErrBackendUnavailable = errors.New("g2p backend unavailable")
	// ErrUnsupportedLanguage is returned for language tags a backend cannot serve.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Backend turns one punctuation-free text segment into phonemes.
// Implementations are not safe for concurrent use; callers go through an
// Engine.
type Backend interface {
	Kind() Kind
	Phonemize(ctx context.Context, segment, language string) (string, error)
	Close() error
}

// Options configure backend construction.
type Options struct {
	// ResourcePath is the espeak-ng data directory for KindEspeak and the
	// dictionary file for KindLexicon.
	ResourcePath string
	// Command overrides the espeak-ng command line, e.g. "espeak-ng" or
	// "/opt/espeak/bin/espeak-ng --sep=_".
	Command string
	// Lexicon seeds a KindLexicon backend without a file.
	Lexicon map[string]string
}

// New builds the backend for kind.
func New(kind Kind, opts Options) (Backend, error) {
	switch kind {
	case KindEspeak:
		return newEspeak(opts)
	case KindLexicon:
		return newLexicon(opts)
	default:
		return nil, fmt.Errorf("unknown g2p backend %s", kind)
	}
}
