package tts

import (
	"errors"
	"fmt"
)

// Every error returned by Init and Run wraps exactly one of these, so callers
// can classify failures with errors.Is.
var (
	// ErrConfig reports invalid construction parameters or a bundle whose
	// declared shapes do not fit them.
	ErrConfig = errors.New("config error")
	// ErrResource reports a missing or malformed file: vocabulary, voice,
	// manifest, graph or G2P data.
	ErrResource = errors.New("resource error")
	// ErrValidation reports unusable input to Run.
	ErrValidation = errors.New("validation error")
	// ErrInference reports a failed G2P call or model stage.
	ErrInference = errors.New("inference error")
)

func classify(kind error, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}

	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}
