package g2p

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLexiconFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.tsv")
	content := "# comment\nhello\thəlˈO\n\nWorld\twˈɜɹld\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	b, err := New(KindLexicon, Options{ResourcePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if b.Kind() != KindLexicon {
		t.Errorf("Kind = %v, want lexicon", b.Kind())
	}

	got, err := b.Phonemize(context.Background(), " Hello world zz ", "en")
	if err != nil {
		t.Fatalf("Phonemize: %v", err)
	}

	if want := "həlˈO wˈɜɹld zz"; got != want {
		t.Errorf("Phonemize = %q, want %q", got, want)
	}
}

func TestLexiconErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.tsv")
	if err := os.WriteFile(bad, []byte("no tab here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		opts   Options
		unavai bool
	}{
		{"missing file", Options{ResourcePath: filepath.Join(dir, "nope.tsv")}, true},
		{"empty lexicon", Options{}, true},
		{"malformed line", Options{ResourcePath: bad}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(KindLexicon, tt.opts)
			if err == nil {
				t.Fatal("New() = nil error")
			}

			if got := errors.Is(err, ErrBackendUnavailable); got != tt.unavai {
				t.Errorf("errors.Is(ErrBackendUnavailable) = %v, want %v (err=%v)", got, tt.unavai, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindEspeak, false},
		{"espeak", KindEspeak, false},
		{" ESPEAK-NG ", KindEspeak, false},
		{"lexicon", KindLexicon, false},
		{"dict", KindLexicon, false},
		{"festival", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseKind(%q) = %v, want error", tt.in, got)
			}

			continue
		}

		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Kind(42), Options{}); err == nil {
		t.Error("New(Kind(42)) = nil error")
	}
}
