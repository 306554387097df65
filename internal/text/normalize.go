package text

import (
	"errors"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalizer rewrites cleaned text before it is split into segments.
type Normalizer interface {
	Normalize(s string) string
}

// NormalizerFunc adapts a plain function to Normalizer.
type NormalizerFunc func(string) string

func (f NormalizerFunc) Normalize(s string) string { return f(s) }

// Identity is the default normalizer. Number and abbreviation expansion
// plug in here.
var Identity Normalizer = NormalizerFunc(func(s string) string { return s })

// Prepare cleans raw input, runs it through n and rejects input that ends up
// empty. A nil n behaves like Identity.
func Prepare(raw string, n Normalizer) (string, error) {
	if n == nil {
		n = Identity
	}

	s := n.Normalize(Clean(raw))
	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}
