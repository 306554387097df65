package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-Id"

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer renders a whole request to a waveform.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, req tts.RunConfig) (tts.AudioBuffer, error)
}

// StreamingSynthesizer renders a request chunk by chunk. Implementations
// close out when they return.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, text string, req tts.RunConfig, out chan<- tts.PCMChunk) error
}

// VoiceLister returns the list of available voices.
type VoiceLister interface {
	ListVoices() []voice.Voice
}

// Backend is everything the server needs from the synthesis layer.
// *tts.Service implements it.
type Backend interface {
	Synthesizer
	StreamingSynthesizer
	VoiceLister
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	streamer       StreamingSynthesizer
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tts.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
// Zero disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStreamer enables POST /tts/stream.
func WithStreamer(s StreamingSynthesizer) Option {
	return func(o *options) { o.streamer = s }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth  Synthesizer
	voices VoiceLister
	opts   options
	sem    chan struct{}
	log    *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /voices, POST /tts
// and, with WithStreamer, POST /tts/stream.
func NewHandler(synth Synthesizer, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	mux.HandleFunc("/tts", h.handleTTS)
	mux.HandleFunc("/tts/stream", h.handleTTSStream)

	return withRequestID(mux)
}

// withRequestID echoes the caller's X-Request-Id or assigns a fresh one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var voices []voice.Voice
	if h.voices != nil {
		voices = h.voices.ListVoices()
	}
	if voices == nil {
		voices = []voice.Voice{}
	}

	writeJSON(w, http.StatusOK, voices)
}

type ttsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

func (r ttsRequest) runConfig() tts.RunConfig {
	return tts.RunConfig{Voice: r.Voice, Speed: r.Speed, Language: r.Language}
}

// decodeRequest parses and bounds-checks a synthesis request, writing the
// error response itself when it returns false.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (ttsRequest, bool) {
	var req ttsRequest

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return req, false
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return req, false
	}

	if req.Speed < 0 {
		writeError(w, http.StatusBadRequest, "speed must be positive")
		return req, false
	}

	if v := strings.TrimSpace(req.Voice); v != "" {
		if err := voice.ValidateName(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return req, false
		}
	}

	return req, true
}

// acquire takes a worker slot, honouring cancellation while waiting. The
// returned func releases it.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) requestLog(r *http.Request, req ttsRequest) *slog.Logger {
	return h.log.With(
		slog.String("request_id", r.Header.Get(RequestIDHeader)),
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
	)
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	log := h.requestLog(r, req)

	start := time.Now()
	buf, err := h.synth.Synthesize(ctx, req.Text, req.runConfig())
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, log, err, durationMS)
		return
	}

	wav, err := audio.EncodeWAV(buf.Samples, buf.SampleRate)
	if err != nil {
		h.fail(w, r, log, err, durationMS)
		return
	}

	log.InfoContext(r.Context(), "synthesis complete",
		slog.Int64("duration_ms", durationMS),
		slog.Int("samples", len(buf.Samples)),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// handleTTSStream writes a WAV header with unknown length once the first
// chunk arrives, then PCM as each chunk completes.
func (h *handler) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	if h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming not available")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	log := h.requestLog(r, req)
	start := time.Now()

	chunks := make(chan tts.PCMChunk, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.opts.streamer.SynthesizeStream(ctx, req.Text, req.runConfig(), chunks)
	}()

	flusher, _ := w.(http.Flusher)
	started := false
	samples := 0

	for chunk := range chunks {
		if !started {
			rate := chunk.SampleRate
			if rate <= 0 {
				rate = audio.NativeSampleRate
			}

			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
			if _, err := audio.WriteStreamHeader(w, rate); err != nil {
				cancel()
				break
			}
			started = true
		}

		if _, err := audio.WritePCM16(w, chunk.Samples); err != nil {
			cancel()
			break
		}
		samples += len(chunk.Samples)

		if flusher != nil {
			flusher.Flush()
		}
	}

	// Drain so the producer can observe cancellation and return.
	for range chunks {
	}

	err := <-errCh
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if !started {
			h.fail(w, r, log, err, durationMS)
			return
		}

		log.WarnContext(r.Context(), "stream aborted",
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)

		return
	}

	if !started {
		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = audio.WriteStreamHeader(w, audio.NativeSampleRate)
	}

	log.InfoContext(r.Context(), "stream complete",
		slog.Int64("duration_ms", durationMS),
		slog.Int("samples", samples),
	)
}

// statusFor maps the synthesis error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, tts.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrResource):
		return http.StatusNotFound
	case errors.Is(err, tts.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, durationMS int64) {
	status := statusFor(err)

	if status == http.StatusGatewayTimeout {
		log.WarnContext(r.Context(), "synthesis timed out",
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "synthesis timed out")

		return
	}

	log.ErrorContext(r.Context(), "synthesis failed",
		slog.Int("status", status),
		slog.Int64("duration_ms", durationMS),
		slog.String("error", err.Error()),
	)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	backend         Backend
	shutdownTimeout time.Duration
}

// New returns a server for cfg. A nil backend is built from cfg with
// tts.NewService when Start runs.
func New(cfg config.Config, backend Backend) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		backend:         backend,
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) handler() http.Handler {
	opts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithStreamer(s.backend),
	}
	if s.cfg.Server.MaxTextBytes > 0 {
		opts = append(opts, WithMaxTextBytes(s.cfg.Server.MaxTextBytes))
	}
	if s.cfg.Server.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second))
	}

	return NewHandler(s.backend, s.backend, opts...)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.backend == nil {
		svc, err := tts.NewService(s.cfg)
		if err != nil {
			return fmt.Errorf("initialize synthesis service: %w", err)
		}
		defer svc.Close()

		s.backend = svc
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that a server answers GET /health with 200.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
