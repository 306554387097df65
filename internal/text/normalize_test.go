package text

import (
	"errors"
	"strings"
	"testing"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		norm    Normalizer
		want    string
		wantErr error
	}{
		{
			name:  "passthrough clean text",
			input: "Hello world",
			want:  "Hello world",
		},
		{
			name:  "cleans before normalizing",
			input: "  Hello，　world！ ",
			want:  "Hello, world!",
		},
		{
			name:  "custom normalizer sees cleaned text",
			input: "hello\t\tthere",
			norm:  NormalizerFunc(strings.ToUpper),
			want:  "HELLO THERE",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrEmptyText,
		},
		{
			name:    "whitespace only",
			input:   " \t\r\n　",
			wantErr: ErrEmptyText,
		},
		{
			name:    "control bytes only",
			input:   "\x01\x02",
			wantErr: ErrEmptyText,
		},
		{
			name:    "normalizer that erases everything",
			input:   "abc",
			norm:    NormalizerFunc(func(string) string { return "" }),
			wantErr: ErrEmptyText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prepare(tt.input, tt.norm)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Prepare(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Prepare(%q) unexpected error: %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("Prepare(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIdentityNormalizer(t *testing.T) {
	in := "Dr. Smith paid $5."
	if got := Identity.Normalize(in); got != in {
		t.Errorf("Identity.Normalize(%q) = %q", in, got)
	}
}
