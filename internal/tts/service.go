package tts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// PCMChunk is one synthesized sentence group of a streamed request.
type PCMChunk struct {
	Samples    []float32
	SampleRate int
	ChunkIndex int
	Final      bool
}

// Service splits long text into pieces that fit the token window and
// spreads requests over a fixed pool of Synthesizers, one per worker.
type Service struct {
	env        *Environment
	pool       chan *Synthesizer
	synths     []*Synthesizer
	voices     *voice.Manager
	defaults   RunConfig
	chunkChars int
}

// NewService opens cfg.Server.Workers synthesizers on the configured bundle.
func NewService(cfg config.Config) (*Service, error) {
	env := NewEnvironment(cfg.Runtime)

	workers := max(cfg.Server.Workers, 1)
	synths := make([]*Synthesizer, 0, workers)

	for range workers {
		s, err := Init(env, cfg.TTS.ModelType, cfg.Paths.ModelDir, InitOptions{
			MaxSeqLen:       cfg.TTS.MaxSeqLen,
			G2PResourcePath: cfg.G2PResourcePath(),
			G2PBackend:      cfg.G2P.Backend,
			G2PCommand:      cfg.G2P.Command,
		})
		if err != nil {
			for _, open := range synths {
				open.Close()
			}
			env.Close()

			return nil, err
		}

		synths = append(synths, s)
	}

	voices, err := voice.NewManager(filepath.Join(cfg.Paths.ModelDir, VoicesDir))
	if err != nil {
		slog.Warn("voice listing unavailable", slog.String("error", err.Error()))
	}

	return newService(env, synths, voices, cfg.TTS), nil
}

func newService(env *Environment, synths []*Synthesizer, voices *voice.Manager, cfg config.TTSConfig) *Service {
	pool := make(chan *Synthesizer, len(synths))
	for _, s := range synths {
		pool <- s
	}

	return &Service{
		env:    env,
		pool:   pool,
		synths: synths,
		voices: voices,
		defaults: RunConfig{
			Voice:      cfg.Voice,
			Speed:      cfg.Speed,
			FadeOut:    cfg.FadeOut,
			SampleRate: cfg.SampleRate,
			Language:   cfg.Language,
		},
		chunkChars: cfg.ChunkChars,
	}
}

// Defaults returns the configured run parameters.
func (s *Service) Defaults() RunConfig {
	return s.defaults
}

// Resolve fills the zero fields of req from the configured defaults.
func (s *Service) Resolve(req RunConfig) RunConfig {
	out := s.defaults
	if req.Voice != "" {
		out.Voice = req.Voice
	}
	if req.Speed != 0 {
		out.Speed = req.Speed
	}
	if req.FadeOut != 0 {
		out.FadeOut = req.FadeOut
	}
	if req.SampleRate != 0 {
		out.SampleRate = req.SampleRate
	}
	if req.Language != "" {
		out.Language = req.Language
	}

	return out
}

// Synthesize renders input chunk by chunk and concatenates the audio.
func (s *Service) Synthesize(ctx context.Context, input string, req RunConfig) (AudioBuffer, error) {
	cfg := s.Resolve(req)
	out := AudioBuffer{SampleRate: cfg.SampleRate}

	err := s.run(ctx, input, cfg, func(_ int, _ bool, buf AudioBuffer) error {
		out.Samples = append(out.Samples, buf.Samples...)
		return nil
	})
	if err != nil {
		return AudioBuffer{}, err
	}

	return out, nil
}

// SynthesizeStream sends one PCMChunk per text piece on out and closes out
// when done, also on error.
func (s *Service) SynthesizeStream(ctx context.Context, input string, req RunConfig, out chan<- PCMChunk) error {
	defer close(out)

	cfg := s.Resolve(req)

	return s.run(ctx, input, cfg, func(i int, final bool, buf AudioBuffer) error {
		select {
		case out <- PCMChunk{
			Samples:    buf.Samples,
			SampleRate: buf.SampleRate,
			ChunkIndex: i,
			Final:      final,
		}:
			return nil
		case <-ctx.Done():
			return classify(ErrInference, ctx.Err(), "stream chunk %d", i)
		}
	})
}

// run splits input into sentence chunks of at most chunkChars runes, splits
// any chunk that overflows the token window further, and synthesizes the
// pieces in order. Only the last piece is faded out, so the joined audio
// has no dips at piece boundaries.
func (s *Service) run(ctx context.Context, input string, cfg RunConfig, emit func(i int, final bool, buf AudioBuffer) error) error {
	synth, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(synth)

	var pieces []string
	for _, chunk := range text.ChunkBySentence(input, s.chunkChars) {
		fitted, err := synth.Fit(ctx, chunk, cfg.Language)
		if err != nil {
			return err
		}

		pieces = append(pieces, fitted...)
	}

	if len(pieces) > 1 {
		slog.Debug("synthesizing in pieces", slog.Int("pieces", len(pieces)))
	}

	for i, piece := range pieces {
		final := i == len(pieces)-1

		pieceCfg := cfg
		if !final {
			pieceCfg.FadeOut = 0
		}

		buf, err := synth.Run(ctx, piece, pieceCfg)
		if err != nil {
			if len(pieces) > 1 {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(pieces), err)
			}

			return err
		}

		if err := emit(i, final, buf); err != nil {
			return err
		}
	}

	return nil
}

// Phonemize runs the text frontend on a pooled synthesizer.
func (s *Service) Phonemize(ctx context.Context, input, language string) (string, []int64, error) {
	synth, err := s.acquire(ctx)
	if err != nil {
		return "", nil, err
	}
	defer s.release(synth)

	if language == "" {
		language = s.defaults.Language
	}

	return synth.Phonemize(ctx, input, language)
}

func (s *Service) acquire(ctx context.Context) (*Synthesizer, error) {
	if len(s.synths) == 0 {
		return nil, classify(ErrConfig, nil, "service has no synthesizers")
	}

	select {
	case synth := <-s.pool:
		return synth, nil
	case <-ctx.Done():
		return nil, classify(ErrInference, ctx.Err(), "waiting for synthesizer")
	}
}

func (s *Service) release(synth *Synthesizer) {
	s.pool <- synth
}

// ListVoices returns the installed voices, or nil when the voices directory
// could not be read.
func (s *Service) ListVoices() []voice.Voice {
	if s.voices == nil {
		return nil
	}

	return s.voices.ListVoices()
}

// Close releases every synthesizer and the environment.
func (s *Service) Close() {
	for _, synth := range s.synths {
		synth.Close()
	}

	if s.env != nil {
		s.env.Close()
	}
}
