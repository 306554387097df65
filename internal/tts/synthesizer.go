// Package tts runs the Kokoro synthesis pipeline: text to phonemes to token
// ids, duration prediction and alignment, the four model stages and the
// inverse STFT that turns the decoder's spectrum into a waveform.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-kokoro-tts/internal/align"
	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/g2p"
	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// Bundle layout below the model directory.
const (
	VocabName = "vocab.txt"
	VoicesDir = "voices"
)

// minSeqLen leaves room for both sentinels and one phoneme.
const minSeqLen = 3

// InitOptions configure a Synthesizer.
type InitOptions struct {
	// MaxSeqLen is the fixed token window the bundle was exported with.
	MaxSeqLen int
	// G2PResourcePath is the espeak-ng data directory or the lexicon file.
	G2PResourcePath string
	// G2PBackend is "espeak" (default) or "lexicon".
	G2PBackend string
	// G2PCommand overrides the espeak-ng command line.
	G2PCommand string
	// Lexicon seeds the lexicon backend in addition to, or instead of, the
	// file at G2PResourcePath.
	Lexicon map[string]string
	// Normalizer rewrites cleaned text before phonemization. Nil keeps the
	// text as is.
	Normalizer text.Normalizer
}

// RunConfig holds the per-call synthesis parameters.
type RunConfig struct {
	Voice      string
	Speed      float64
	FadeOut    float64
	SampleRate int
	Language   string
}

// AudioBuffer is a mono float waveform.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playing time of the buffer.
func (b AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Synthesizer owns one set of model sessions and a voice cache. Run calls on
// one Synthesizer are serialized; use several for parallel synthesis.
type Synthesizer struct {
	mu sync.Mutex

	maxSeqLen  int
	normalizer text.Normalizer
	phonemizer *g2p.Phonemizer
	vocab      *tokenizer.Vocabulary
	voices     *voice.Store
	stages     map[string]Stage
	closed     bool
}

// Init loads the bundle in modelDir: manifest.json, vocab.txt and the
// voices directory. The G2P backend and the four stage sessions are opened
// through env.
func Init(env *Environment, modelType, modelDir string, opts InitOptions) (*Synthesizer, error) {
	if env == nil {
		return nil, classify(ErrConfig, nil, "environment is required")
	}

	if _, err := config.NormalizeModelType(modelType); err != nil {
		return nil, classify(ErrConfig, err, "model type")
	}

	if err := validateInit(opts); err != nil {
		return nil, err
	}

	kind, err := g2p.ParseKind(opts.G2PBackend)
	if err != nil {
		return nil, classify(ErrConfig, err, "g2p backend")
	}

	vocab, err := tokenizer.LoadVocabulary(filepath.Join(modelDir, VocabName))
	if err != nil {
		return nil, classify(ErrResource, err, "vocabulary")
	}

	manifest, err := onnx.LoadManifest(filepath.Join(modelDir, onnx.ManifestName))
	if err != nil {
		return nil, classify(ErrResource, err, "model manifest")
	}

	if err := checkContract(manifest, opts.MaxSeqLen); err != nil {
		return nil, classify(ErrConfig, err, "model bundle %s", modelDir)
	}

	backend, err := g2p.New(kind, g2p.Options{
		ResourcePath: opts.G2PResourcePath,
		Command:      opts.G2PCommand,
		Lexicon:      opts.Lexicon,
	})
	if err != nil {
		return nil, classify(ErrResource, err, "g2p %s", kind)
	}

	ortEnv, err := env.ONNX()
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	stages, err := openStages(ortEnv, manifest)
	if err != nil {
		_ = backend.Close()
		return nil, classify(ErrResource, err, "model sessions")
	}

	s := newSynthesizer(
		g2p.NewPhonemizer(env.G2P(), backend, nil),
		vocab,
		voice.NewStore(filepath.Join(modelDir, VoicesDir)),
		stages,
		opts,
	)

	slog.Info("synthesizer ready",
		slog.String("model_dir", modelDir),
		slog.Int("max_seq_len", opts.MaxSeqLen),
		slog.String("g2p", kind.String()),
		slog.Int("vocab", vocab.Len()),
	)

	return s, nil
}

func validateInit(opts InitOptions) error {
	if opts.MaxSeqLen < minSeqLen || opts.MaxSeqLen > voice.MaxPhonemeLength {
		return classify(ErrConfig, nil, "max_seq_len %d outside [%d, %d]", opts.MaxSeqLen, minSeqLen, voice.MaxPhonemeLength)
	}

	if opts.G2PResourcePath == "" && len(opts.Lexicon) == 0 {
		return classify(ErrConfig, nil, "g2p resource path is required")
	}

	return nil
}

func newSynthesizer(ph *g2p.Phonemizer, vocab *tokenizer.Vocabulary, voices *voice.Store, stages map[string]Stage, opts InitOptions) *Synthesizer {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = text.Identity
	}

	return &Synthesizer{
		maxSeqLen:  opts.MaxSeqLen,
		normalizer: normalizer,
		phonemizer: ph,
		vocab:      vocab,
		voices:     voices,
		stages:     stages,
	}
}

// MaxSeqLen returns the token window size.
func (s *Synthesizer) MaxSeqLen() int { return s.maxSeqLen }

// Phonemize runs the text frontend alone and returns the phoneme string with
// its token ids, before any truncation.
func (s *Synthesizer) Phonemize(ctx context.Context, input, language string) (string, []int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", nil, classify(ErrConfig, nil, "synthesizer closed")
	}

	return s.frontend(ctx, input, language)
}

func (s *Synthesizer) frontend(ctx context.Context, input, language string) (string, []int64, error) {
	cleaned, err := text.Prepare(input, s.normalizer)
	if err != nil {
		return "", nil, classify(ErrValidation, err, "input text")
	}

	phonemes, err := s.phonemizer.Phonemize(ctx, cleaned, language)
	if err != nil {
		if errors.Is(err, g2p.ErrUnsupportedLanguage) {
			return "", nil, classify(ErrValidation, err, "language %q", language)
		}

		return "", nil, classify(ErrInference, err, "g2p")
	}

	ids, skipped := s.vocab.Encode(phonemes)
	if skipped > 0 {
		slog.Debug("phonemes missing from vocabulary", slog.Int("skipped", skipped))
	}

	if len(ids) <= 2 {
		return phonemes, nil, classify(ErrValidation, nil, "text %q produced no known phonemes", input)
	}

	return phonemes, ids, nil
}

func validateRun(cfg RunConfig) error {
	switch {
	case !(float32(cfg.Speed) > 0) || math.IsInf(float64(float32(cfg.Speed)), 0):
		return classify(ErrValidation, nil, "speed %v must be positive and finite", cfg.Speed)
	case cfg.FadeOut < 0:
		return classify(ErrValidation, nil, "fade out %v must not be negative", cfg.FadeOut)
	case cfg.SampleRate <= 0:
		return classify(ErrValidation, nil, "sample rate %d must be positive", cfg.SampleRate)
	}

	return nil
}

// Run synthesizes input with the given voice and returns the waveform at
// cfg.SampleRate. Any failure aborts the whole call; no partial audio is
// returned.
func (s *Synthesizer) Run(ctx context.Context, input string, cfg RunConfig) (AudioBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AudioBuffer{}, classify(ErrConfig, nil, "synthesizer closed")
	}

	if err := validateRun(cfg); err != nil {
		return AudioBuffer{}, err
	}

	r := &run{
		s:     s,
		log:   slog.With(slog.String("run_id", uuid.NewString())),
		start: time.Now(),
	}

	return r.synthesize(ctx, input, cfg)
}

// Close releases the sessions and the voice cache. Safe to call more than
// once.
func (s *Synthesizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	closeStages(s.stages)
	s.voices.Reset()
	_ = s.phonemizer.Close()
}

// run carries the per-call logger.
type run struct {
	s     *Synthesizer
	log   *slog.Logger
	start time.Time
}

func (r *run) synthesize(ctx context.Context, input string, cfg RunConfig) (AudioBuffer, error) {
	s := r.s
	seqLen := s.maxSeqLen

	_, ids, err := s.frontend(ctx, input, cfg.Language)
	if err != nil {
		return AudioBuffer{}, err
	}

	r.mark("frontend")

	ids, truncated := tokenizer.Truncate(ids, seqLen)
	if truncated {
		r.log.Warn("token sequence truncated", slog.Int("max_seq_len", seqLen))
	}

	table, err := s.voices.Get(cfg.Voice)
	if err != nil {
		if errors.Is(err, voice.ErrEmptyVoice) || errors.Is(err, voice.ErrInvalidVoiceName) {
			return AudioBuffer{}, classify(ErrValidation, err, "voice")
		}

		return AudioBuffer{}, classify(ErrResource, err, "voice")
	}

	style := table.Select(len(ids))
	origLen := len(ids)

	window, doubled := align.Double(ids, seqLen)
	activeLen := len(window)
	inputIDs := align.Pad(window, seqLen)

	idsT, err := onnx.NewTensor(inputIDs, []int64{1, int64(seqLen)})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "input ids")
	}

	styleT, err := onnx.NewTensor(style, []int64{1, voice.StyleDim})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "style")
	}

	maskByte, maskFloat := textMasks(seqLen, activeLen)

	maskByteT, err := onnx.NewTensor(maskByte, []int64{1, int64(seqLen)})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "text mask")
	}

	outA, err := r.stage(ctx, StageDuration, map[string]*onnx.Tensor{
		portInputIDs: idsT,
		portStyle:    styleT,
		portTextMask: maskByteT,
	})
	if err != nil {
		return AudioBuffer{}, err
	}

	logits, bins, err := perToken(outA, portDuration, seqLen)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, StageDuration)
	}

	tokenFeat, dim, err := perToken(outA, portTokenFeat, seqLen)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, StageDuration)
	}

	pred, err := align.PredictDurations(logits, bins, activeLen, float32(cfg.Speed))
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "durations")
	}

	plan, err := align.Reconcile(pred, seqLen)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "durations")
	}

	aln := plan.Build()

	frameFeat, err := align.Upsample(tokenFeat, dim, aln)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "upsample")
	}

	r.mark("align")

	cols := int64(aln.Cols)

	enT, err := onnx.NewTensor(frameFeat, []int64{1, int64(dim), cols})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "frame features")
	}

	alnT, err := onnx.NewTensor(aln.Data, []int64{1, int64(seqLen), cols})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "alignment")
	}

	maskFloatT, err := onnx.NewTensor(maskFloat, []int64{1, int64(seqLen)})
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "text mask")
	}

	outB, err := r.stage(ctx, StageProsody, map[string]*onnx.Tensor{
		portFrameFeat: enT,
		portStyle:     styleT,
		portInputIDs:  idsT,
		portTextMask:  maskFloatT,
		portAlignment: alnT,
	})
	if err != nil {
		return AudioBuffer{}, err
	}

	outC, err := r.stage(ctx, StageHarmonic, map[string]*onnx.Tensor{
		portPitch: outB[portPitch],
	})
	if err != nil {
		return AudioBuffer{}, err
	}

	outD, err := r.stage(ctx, StageDecoder, map[string]*onnx.Tensor{
		portEmbedding: outB[portEmbedding],
		portPitch:     outB[portPitch],
		portNoise:     outB[portNoise],
		portStyle:     styleT,
		portHarmonic:  outC[portHarmonic],
	})
	if err != nil {
		return AudioBuffer{}, err
	}

	packed, frames, err := spectrum(outD)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, StageDecoder)
	}

	samples, err := audio.Reconstruct(packed, audio.Bins, frames)
	if err != nil {
		return AudioBuffer{}, classify(ErrInference, err, "istft")
	}

	r.mark("istft")

	total := plan.TotalFrames
	content := align.ContentFrames(plan.Durations, activeLen)

	if doubled {
		samples = audio.FirstHalf(samples)
		content = align.ContentFrames(plan.Durations, origLen)
		total /= 2
	}

	if seqLen-origLen > 0 {
		samples = audio.TrimByContent(samples, content, total)
	}

	if cfg.SampleRate != audio.NativeSampleRate {
		samples, err = audio.Resample(samples, audio.NativeSampleRate, cfg.SampleRate)
		if err != nil {
			return AudioBuffer{}, classify(ErrValidation, err, "sample rate")
		}
	}

	samples = audio.FadeOut(samples, cfg.SampleRate, cfg.FadeOut)

	r.log.Debug("synthesis done",
		slog.Int("tokens", origLen),
		slog.Bool("doubled", doubled),
		slog.Int("samples", len(samples)),
		slog.Duration("elapsed", time.Since(r.start)),
	)

	return AudioBuffer{Samples: samples, SampleRate: cfg.SampleRate}, nil
}

// stage runs one named stage, logging its wall time.
func (r *run) stage(ctx context.Context, name string, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ErrInference, err, "%s", name)
	}

	st, ok := r.s.stages[name]
	if !ok {
		return nil, classify(ErrConfig, nil, "stage %q not loaded", name)
	}

	begin := time.Now()

	out, err := st.Run(ctx, inputs)
	if err != nil {
		return nil, classify(ErrInference, err, "%s", name)
	}

	r.log.Debug("stage", slog.String("stage", name), slog.Duration("elapsed", time.Since(begin)))

	return out, nil
}

func (r *run) mark(step string) {
	r.log.Debug("stage", slog.String("stage", step), slog.Duration("elapsed", time.Since(r.start)))
}

// textMasks returns the padding mask as uint8 for the duration stage and as
// float for the prosody stage. Positions at or after activeLen are 1.
func textMasks(n, activeLen int) ([]uint8, []float32) {
	byteMask := make([]uint8, n)
	floats := make([]float32, n)

	for i := activeLen; i < n; i++ {
		byteMask[i] = 1
		floats[i] = 1
	}

	return byteMask, floats
}

// perToken reads a [1, rows, k] float output and returns it with k.
func perToken(outputs map[string]*onnx.Tensor, name string, rows int) ([]float32, int, error) {
	t, ok := outputs[name]
	if !ok {
		return nil, 0, fmt.Errorf("missing output %q", name)
	}

	data, err := t.Float32()
	if err != nil {
		return nil, 0, fmt.Errorf("output %q: %w", name, err)
	}

	if len(data) == 0 || len(data)%rows != 0 {
		return nil, 0, fmt.Errorf("output %q: %d values do not split into %d rows", name, len(data), rows)
	}

	return data, len(data) / rows, nil
}

// spectrum reads the decoder's [1, 2*Bins, frames] output.
func spectrum(outputs map[string]*onnx.Tensor) ([]float32, int, error) {
	t, ok := outputs[portSpectrum]
	if !ok {
		return nil, 0, fmt.Errorf("missing output %q", portSpectrum)
	}

	shape := t.Shape()
	if len(shape) != 3 || shape[1] != 2*audio.Bins {
		return nil, 0, fmt.Errorf("output %q: shape %v, want [1 %d frames]", portSpectrum, shape, 2*audio.Bins)
	}

	data, err := t.Float32()
	if err != nil {
		return nil, 0, fmt.Errorf("output %q: %w", portSpectrum, err)
	}

	return data, int(shape[2]), nil
}
