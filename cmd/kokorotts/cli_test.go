package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// fakeService records the last request and returns a fixed buffer.
type fakeService struct {
	buf      tts.AudioBuffer
	err      error
	cfg      config.Config
	lastText string
	lastReq  tts.RunConfig
	lastLang string
	calls    int
	closed   bool
}

func (f *fakeService) Synthesize(_ context.Context, text string, req tts.RunConfig) (tts.AudioBuffer, error) {
	f.calls++
	f.lastText, f.lastReq = text, req
	if f.err != nil {
		return tts.AudioBuffer{}, f.err
	}

	return f.buf, nil
}

func (f *fakeService) Phonemize(_ context.Context, text, language string) (string, []int64, error) {
	f.lastText, f.lastLang = text, language
	if f.err != nil {
		return "", nil, f.err
	}

	return "həlˈoʊ", []int64{0, 50, 83, 54, 156, 57, 135, 0}, nil
}

func (f *fakeService) Close() { f.closed = true }

func stubService(t *testing.T, svc *fakeService) {
	t.Helper()

	orig := newSynthService
	t.Cleanup(func() { newSynthService = orig })

	newSynthService = func(cfg config.Config) (synthService, error) {
		svc.cfg = cfg
		return svc, nil
	}
}

func rampBuffer(n, rate int) tts.AudioBuffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25 * float32(i%8) / 8
	}

	return tts.AudioBuffer{Samples: samples, SampleRate: rate}
}

// runCLI executes the root command with args and returns what it wrote to
// stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	orig := activeCfg
	t.Cleanup(func() { activeCfg = orig; closeLogFile() })

	root := NewRootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}
