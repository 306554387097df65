package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/server"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// stubSynthesizer implements server.Synthesizer for tests.
type stubSynthesizer struct {
	buf  tts.AudioBuffer
	err  error
	last tts.RunConfig
	text string
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string, req tts.RunConfig) (tts.AudioBuffer, error) {
	s.text = text
	s.last = req
	return s.buf, s.err
}

// stubVoiceLister implements server.VoiceLister for tests.
type stubVoiceLister struct {
	voices []voice.Voice
}

func (v *stubVoiceLister) ListVoices() []voice.Voice {
	return v.voices
}

func okBuffer() tts.AudioBuffer {
	return tts.AudioBuffer{Samples: []float32{0, 0.25, -0.25, 0.5}, SampleRate: audio.NativeSampleRate}
}

func newTestHandler(synth server.Synthesizer, voices server.VoiceLister) http.Handler {
	return server.NewHandler(synth, voices)
}

func postTTS(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)

	return rec
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{}, &stubVoiceLister{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// GET /voices
// ---------------------------------------------------------------------------

func TestVoices_ReturnsJSONArray(t *testing.T) {
	voices := []voice.Voice{
		{ID: "af_heart", Path: "af_heart.bin", License: "apache-2.0"},
		{ID: "bf_emma", Path: "bf_emma.bin"},
	}
	h := newTestHandler(&stubSynthesizer{}, &stubVoiceLister{voices: voices})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got []voice.Voice
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 || got[0].ID != "af_heart" || got[1].ID != "bf_emma" {
		t.Errorf("unexpected voices: %v", got)
	}
}

func TestVoices_ReturnsEmptyArrayWhenNoVoices(t *testing.T) {
	for _, lister := range []server.VoiceLister{&stubVoiceLister{}, nil} {
		h := newTestHandler(&stubSynthesizer{}, lister)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voices", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}

		if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
			t.Errorf("body = %s, want []", got)
		}
	}
}

// ---------------------------------------------------------------------------
// POST /tts
// ---------------------------------------------------------------------------

func TestTTS_ReturnsMissingBodyAs400(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{}, &stubVoiceLister{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tts", nil)
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if body["error"] == "" {
		t.Error("want non-empty error field")
	}
}

func TestTTS_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text":"","voice":"af_heart"}`},
		{"blank text", `{"text":"   "}`},
		{"invalid json", `{"text":`},
		{"negative speed", `{"text":"hi","speed":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubSynthesizer{buf: okBuffer()}, &stubVoiceLister{})

			if rec := postTTS(h, tt.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", rec.Code)
			}
		})
	}
}

func TestTTS_RejectsVoicePaths(t *testing.T) {
	for _, v := range []string{"/etc/passwd", "../../outside", "voices/af_heart", "af_heart.bin", ".."} {
		t.Run(v, func(t *testing.T) {
			synth := &stubSynthesizer{buf: okBuffer()}
			h := newTestHandler(synth, &stubVoiceLister{})

			body, _ := json.Marshal(map[string]string{"text": "Hello.", "voice": v})

			rec := postTTS(h, string(body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", rec.Code)
			}

			if synth.text != "" {
				t.Error("synthesizer called with a path-like voice")
			}
		})
	}
}

func TestTTS_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{}, &stubVoiceLister{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestTTS_ReturnsWAVOnSuccess(t *testing.T) {
	synth := &stubSynthesizer{buf: okBuffer()}
	h := newTestHandler(synth, &stubVoiceLister{})

	rec := postTTS(h, `{"text":"Hello world.","voice":"bf_emma","speed":1.25,"language":"en-gb"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("want Content-Type audio/wav, got %q", ct)
	}

	samples, rate, err := audio.DecodeWAV(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if rate != audio.NativeSampleRate || len(samples) != 4 {
		t.Errorf("decoded %d samples at %d Hz", len(samples), rate)
	}

	want := tts.RunConfig{Voice: "bf_emma", Speed: 1.25, Language: "en-gb"}
	if synth.last != want || synth.text != "Hello world." {
		t.Errorf("synthesizer got %q %+v, want %+v", synth.text, synth.last, want)
	}
}

func TestTTS_RequestID(t *testing.T) {
	h := newTestHandler(&stubSynthesizer{buf: okBuffer()}, &stubVoiceLister{})

	rec := postTTS(h, `{"text":"hi"}`)
	if id := rec.Header().Get(server.RequestIDHeader); len(id) != 36 {
		t.Errorf("generated request id = %q, want a uuid", id)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(server.RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)

	if id := rec.Header().Get(server.RequestIDHeader); id != "abc-123" {
		t.Errorf("echoed request id = %q, want abc-123", id)
	}
}

func TestTTS_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty text", tts.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: voice \"x\"", tts.ErrResource), http.StatusNotFound},
		{fmt.Errorf("%w: decoder", tts.ErrInference), http.StatusBadGateway},
		{fmt.Errorf("%w: prosody: %w", tts.ErrInference, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: closed", tts.ErrConfig), http.StatusInternalServerError},
		{errSynthFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestHandler(&stubSynthesizer{err: tt.err}, &stubVoiceLister{})

			rec := postTTS(h, `{"text":"Hello."}`)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d", tt.want, rec.Code)
			}

			var errBody map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
				t.Fatalf("decode error body: %v", err)
			}

			if errBody["error"] == "" {
				t.Error("want non-empty error field")
			}
		})
	}
}

var errSynthFailed = &synthError{"synthesis failed"}

type synthError struct{ msg string }

func (e *synthError) Error() string { return e.msg }
