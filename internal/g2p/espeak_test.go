package g2p

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeEspeak writes a shell script that prints its arguments on one line and
// echoes stdin on a second line.
func fakeEspeak(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture needs a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-espeak")
	script := "#!/bin/sh\n" + body + "\n"

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake espeak: %v", err)
	}

	return path
}

func TestEspeakArgsAndClauseJoin(t *testing.T) {
	exe := fakeEspeak(t, `echo "$@"; cat; echo`)
	data := t.TempDir()

	b, err := New(KindEspeak, Options{Command: exe + " --punct", ResourcePath: data})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := b.Phonemize(context.Background(), "  hello there ", "en-GB")
	if err != nil {
		t.Fatalf("Phonemize: %v", err)
	}

	want := "--punct -q --ipa --tie=^ -v en-gb --path=" + data + " --stdin hello there"
	if got != want {
		t.Errorf("Phonemize = %q, want %q", got, want)
	}
}

func TestEspeakEmptySegmentSkipsProcess(t *testing.T) {
	exe := fakeEspeak(t, `exit 3`)

	b, err := New(KindEspeak, Options{Command: exe})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := b.Phonemize(context.Background(), "   ", "en")
	if err != nil || got != "" {
		t.Errorf("Phonemize(blank) = %q, %v; want empty, nil", got, err)
	}
}

func TestEspeakFailureIncludesStderr(t *testing.T) {
	exe := fakeEspeak(t, `echo "segmentation fault in dictionary" >&2; exit 1`)

	b, err := New(KindEspeak, Options{Command: exe})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = b.Phonemize(context.Background(), "hi", "en")
	if err == nil || !strings.Contains(err.Error(), "segmentation fault in dictionary") {
		t.Errorf("Phonemize error = %v, want stderr text", err)
	}

	if errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("generic failure reported as unsupported language: %v", err)
	}
}

func TestEspeakUnknownVoiceIsUnsupportedLanguage(t *testing.T) {
	messages := []string{
		"Failed to read voice 'xx'",
		"Error: voice 'xx' not found",
		"espeak-ng: Unknown voice: xx",
	}

	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			exe := fakeEspeak(t, `echo "`+msg+`" >&2; exit 1`)

			b, err := New(KindEspeak, Options{Command: exe})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = b.Phonemize(context.Background(), "hi", "xx")
			if !errors.Is(err, ErrUnsupportedLanguage) {
				t.Errorf("Phonemize error = %v, want ErrUnsupportedLanguage", err)
			}
		})
	}
}

func TestEspeakRejectsMalformedLanguageTags(t *testing.T) {
	// The fake would succeed, so an error proves the tag never reached it.
	exe := fakeEspeak(t, `cat`)

	b, err := New(KindEspeak, Options{Command: exe})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, tag := range []string{"--path=/tmp", "-x", "en us", "en;rm", "../en", "english-language-variant"} {
		if _, err := b.Phonemize(context.Background(), "hi", tag); !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("Phonemize(lang %q) error = %v, want ErrUnsupportedLanguage", tag, err)
		}
	}
}

func TestEspeakMissingBinary(t *testing.T) {
	_, err := New(KindEspeak, Options{Command: "definitely-not-espeak-ng-binary"})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("New error = %v, want ErrBackendUnavailable", err)
	}
}

func TestEspeakMissingDataPath(t *testing.T) {
	exe := fakeEspeak(t, `cat`)

	_, err := New(KindEspeak, Options{Command: exe, ResourcePath: filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("New error = %v, want ErrBackendUnavailable", err)
	}
}

func TestEspeakVoice(t *testing.T) {
	tests := map[string]string{
		"":      "en-us",
		"en":    "en-us",
		"EN_US": "en-us",
		"en-gb": "en-gb",
		"zh":    "cmn",
		"de":    "de",
	}

	for in, want := range tests {
		if got := EspeakVoice(in); got != want {
			t.Errorf("EspeakVoice(%q) = %q, want %q", in, got, want)
		}
	}
}
