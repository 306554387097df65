package config

import (
	"fmt"
	"strings"
)

const (
	ModelKokoro = "kokoro"

	G2PEspeak  = "espeak"
	G2PLexicon = "lexicon"
)

// NormalizeModelType canonicalizes a model family name. Empty means kokoro.
func NormalizeModelType(raw string) (string, error) {
	model := strings.ToLower(strings.TrimSpace(raw))
	switch model {
	case "", ModelKokoro, "kokoro-82m":
		return ModelKokoro, nil
	default:
		return "", fmt.Errorf("invalid model type %q (expected %s)", raw, ModelKokoro)
	}
}

// NormalizeG2PBackend canonicalizes a G2P backend name. Empty means espeak.
func NormalizeG2PBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	switch backend {
	case "", G2PEspeak, "espeak-ng":
		return G2PEspeak, nil
	case G2PLexicon, "dict":
		return G2PLexicon, nil
	default:
		return "", fmt.Errorf("invalid g2p backend %q (expected %s|%s)", raw, G2PEspeak, G2PLexicon)
	}
}
