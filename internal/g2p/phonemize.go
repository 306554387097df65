package g2p

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/go-kokoro-tts/internal/text"
)

// Phonemizer runs the segment-wise G2P step: split at punctuation, phonemize
// each segment under the engine lock, reattach marks and normalize the
// result with the backend's substitution table.
type Phonemizer struct {
	engine  *Engine
	backend Backend
	punct   *text.Punctuator
	tables  map[string]*Table
}

// NewPhonemizer wires backend to the shared engine. A nil punct uses the
// default mark set.
func NewPhonemizer(engine *Engine, backend Backend, punct *text.Punctuator) *Phonemizer {
	if punct == nil {
		punct = text.NewPunctuator("")
	}

	return &Phonemizer{
		engine:  engine,
		backend: backend,
		punct:   punct,
		tables:  make(map[string]*Table),
	}
}

// Backend returns the underlying backend.
func (p *Phonemizer) Backend() Backend { return p.backend }

// Phonemize converts cleaned text into a phoneme string.
func (p *Phonemizer) Phonemize(ctx context.Context, s, language string) (string, error) {
	segs := p.punct.Split(s)
	pieces := make([]string, 0, len(segs))

	for _, seg := range segs {
		var ps string

		if strings.TrimSpace(seg.Text) != "" {
			err := p.engine.Do(func() error {
				var err error
				ps, err = p.backend.Phonemize(ctx, seg.Text, language)

				return err
			})
			if err != nil {
				return "", fmt.Errorf("phonemize %q: %w", seg.Text, err)
			}
		}

		if piece := strings.TrimSpace(ps) + seg.Mark; piece != "" {
			pieces = append(pieces, piece)
		}
	}

	return p.table(language).Apply(strings.Join(pieces, " ")), nil
}

// Close releases the backend. The engine stays open for other phonemizers.
func (p *Phonemizer) Close() error {
	return p.backend.Close()
}

func (p *Phonemizer) table(language string) *Table {
	key := EspeakVoice(language)
	if t, ok := p.tables[key]; ok {
		return t
	}

	t := TableFor(p.backend.Kind(), language)
	p.tables[key] = t

	return t
}
