package tts

import (
	"context"
	"errors"
	"strings"

	"github.com/example/go-kokoro-tts/internal/g2p"
	"github.com/example/go-kokoro-tts/internal/text"
)

var clausePunctuator = text.NewPunctuator("")

// Fit splits input into pieces whose token sequences fit the model window,
// so Run never has to truncate them. Input that already fits comes back as
// the only piece. Longer input is split at clause punctuation first, then at
// spaces. A single word that still overflows is returned alone and Run
// truncates it. Pieces without any known phoneme are dropped.
func (s *Synthesizer) Fit(ctx context.Context, input, language string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, classify(ErrConfig, nil, "synthesizer closed")
	}

	_, ids, err := s.frontend(ctx, input, language)
	if err != nil {
		return nil, err
	}

	return s.fit(ctx, input, language, len(ids))
}

// fit splits input, whose token count is n.
func (s *Synthesizer) fit(ctx context.Context, input, language string, n int) ([]string, error) {
	if n <= s.maxSeqLen {
		return []string{input}, nil
	}

	parts := clausePunctuator.Clauses(input)
	if len(parts) < 2 {
		parts = strings.Fields(input)
	}

	if len(parts) < 2 {
		return []string{input}, nil
	}

	var (
		out     []string
		current string
		tokens  int
	)

	// Groups without phonemes are silent and dropped.
	flush := func() error {
		if tokens == 0 {
			return nil
		}

		pieces, err := s.fit(ctx, current, language, tokens)
		if err != nil {
			return err
		}

		out = append(out, pieces...)

		return nil
	}

	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + " " + part
		}

		m, err := s.tokenCount(ctx, candidate, language)
		if err != nil {
			return nil, err
		}

		if current == "" || m <= s.maxSeqLen {
			current, tokens = candidate, m
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		if tokens, err = s.tokenCount(ctx, part, language); err != nil {
			return nil, err
		}

		current = part
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

// tokenCount returns the length of the token sequence input encodes to,
// sentinels included, or 0 when it has no known phoneme.
func (s *Synthesizer) tokenCount(ctx context.Context, input, language string) (int, error) {
	_, ids, err := s.frontend(ctx, input, language)
	if errors.Is(err, ErrValidation) && !errors.Is(err, g2p.ErrUnsupportedLanguage) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return len(ids), nil
}
