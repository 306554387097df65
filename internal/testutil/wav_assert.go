package testutil

import (
	"testing"

	"github.com/example/go-kokoro-tts/internal/audio"
)

// DecodeMonoWAV decodes data and fails the test unless it is a non-empty
// mono 16-bit WAV at sampleRate. It returns the decoded samples.
func DecodeMonoWAV(tb testing.TB, data []byte, sampleRate int) []float32 {
	tb.Helper()

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		tb.Fatalf("not a RIFF/WAVE stream (%d bytes)", len(data))
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		tb.Fatalf("decode WAV: %v", err)
	}

	if rate != sampleRate {
		tb.Fatalf("WAV sample rate = %d, want %d", rate, sampleRate)
	}

	if len(samples) == 0 {
		tb.Fatal("WAV holds no samples")
	}

	return samples
}

// AssertDurationApprox fails unless n samples at sampleRate last between
// minSec and maxSec.
func AssertDurationApprox(tb testing.TB, n, sampleRate int, minSec, maxSec float64) {
	tb.Helper()

	sec := float64(n) / float64(sampleRate)
	if sec < minSec || sec > maxSec {
		tb.Fatalf("audio lasts %.3fs, want [%.3fs, %.3fs]", sec, minSec, maxSec)
	}
}
