package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// stubBackend satisfies Backend with canned audio.
type stubBackend struct {
	voices []voice.Voice
}

func (stubBackend) Synthesize(context.Context, string, tts.RunConfig) (tts.AudioBuffer, error) {
	return tts.AudioBuffer{Samples: []float32{0, 0.5}, SampleRate: 24000}, nil
}

func (stubBackend) SynthesizeStream(_ context.Context, _ string, _ tts.RunConfig, out chan<- tts.PCMChunk) error {
	defer close(out)
	out <- tts.PCMChunk{Samples: []float32{0.5}, SampleRate: 24000, Final: true}
	return nil
}

func (b stubBackend) ListVoices() []voice.Voice { return b.voices }

// --- New & WithShutdownTimeout ---

func TestNew_DefaultShutdownTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	s := New(cfg, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}

	if s.shutdownTimeout != 30*time.Second {
		t.Errorf("shutdownTimeout = %v; want 30s", s.shutdownTimeout)
	}
}

func TestNew_ShutdownTimeoutFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = 7

	if s := New(cfg, nil); s.shutdownTimeout != 7*time.Second {
		t.Errorf("shutdownTimeout = %v; want 7s", s.shutdownTimeout)
	}
}

func TestWithShutdownTimeout(t *testing.T) {
	cfg := config.DefaultConfig()

	s := New(cfg, nil).WithShutdownTimeout(5 * time.Second)
	if s.shutdownTimeout != 5*time.Second {
		t.Errorf("shutdownTimeout = %v; want 5s", s.shutdownTimeout)
	}
}

func TestWithShutdownTimeout_Chaining(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, nil)
	// Must return the same *Server for chaining.
	if returned := s.WithShutdownTimeout(10 * time.Second); returned != s {
		t.Error("WithShutdownTimeout should return the same *Server")
	}
}

// --- handler wiring ---

func TestServerHandler_ServesStreamAndVoices(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.RequestTimeout = 0
	cfg.Server.MaxTextBytes = 0

	s := New(cfg, stubBackend{voices: []voice.Voice{{ID: "af_heart", Path: "af_heart.bin"}}})
	h := s.handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voices", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("/voices = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tts/stream", stringsReader(`{"text":"hi"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.Len() != 46 {
		t.Fatalf("/tts/stream = %d with %d bytes; want 200 with 46", rec.Code, rec.Body.Len())
	}

	// Zero config values fall back to the handler defaults instead of
	// expiring every request.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", stringsReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("/tts = %d", rec.Code)
	}
}

// --- statusFor ---

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: wait: %w", tts.ErrInference, context.Canceled), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: x", tts.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: x", tts.ErrResource), http.StatusNotFound},
		{fmt.Errorf("%w: x", tts.ErrInference), http.StatusBadGateway},
		{fmt.Errorf("%w: x", tts.ErrConfig), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}

// --- ProbeHTTP ---

func TestProbeHTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// ProbeHTTP uses "http://" prefix + addr, so strip the scheme.
	addr := srv.Listener.Addr().String()

	if err := ProbeHTTP(addr); err != nil {
		t.Errorf("ProbeHTTP(%q) = %v; want nil", addr, err)
	}
}

func TestProbeHTTP_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := ProbeHTTP(srv.Listener.Addr().String()); err == nil {
		t.Error("ProbeHTTP() = nil; want error for non-200 response")
	}
}

func TestProbeHTTP_ConnectionRefused(t *testing.T) {
	if err := ProbeHTTP("127.0.0.1:1"); err == nil {
		t.Error("ProbeHTTP() = nil; want error for unreachable host")
	}
}

// --- Functional options ---

func TestOptions_WithMaxTextBytes(t *testing.T) {
	opts := defaultOptions()
	WithMaxTextBytes(1024)(&opts)

	if opts.maxTextBytes != 1024 {
		t.Errorf("maxTextBytes = %d; want 1024", opts.maxTextBytes)
	}
}

func TestOptions_WithWorkers(t *testing.T) {
	opts := defaultOptions()
	WithWorkers(8)(&opts)

	if opts.workers != 8 {
		t.Errorf("workers = %d; want 8", opts.workers)
	}
}

func TestOptions_WithRequestTimeout(t *testing.T) {
	opts := defaultOptions()
	WithRequestTimeout(90 * time.Second)(&opts)

	if opts.requestTimeout != 90*time.Second {
		t.Errorf("requestTimeout = %v; want 90s", opts.requestTimeout)
	}
}

func TestOptions_WithStreamer(t *testing.T) {
	opts := defaultOptions()
	if opts.streamer != nil {
		t.Fatal("streaming should be off by default")
	}

	WithStreamer(stubBackend{})(&opts)
	if opts.streamer == nil {
		t.Error("streamer not set")
	}
}

func TestOptions_WorkersZeroDisablesSemaphore(t *testing.T) {
	h := NewHandler(stubBackend{}, stubBackend{}, WithWorkers(0))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tts", stringsReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("/tts = %d", rec.Code)
	}
}
