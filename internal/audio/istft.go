package audio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectral framing produced by the decoder stage.
const (
	NFFT      = 20
	HopLength = 5
	Bins      = NFFT/2 + 1
)

// ErrSpectrumShape is returned when a packed spectrum does not match the
// declared bin and frame counts.
var ErrSpectrumShape = errors.New("spectrum shape mismatch")

// Spectrum is a complex short-time spectrum stored bin-major:
// Data[b*Frames+f] holds bin b of frame f.
type Spectrum struct {
	Bins   int
	Frames int
	Data   []complex128
}

// Unpack converts the decoder's packed [2*bins x frames] tensor into a
// complex spectrum. The first half holds log-magnitudes, the second half a
// phase proxy whose sine is the imaginary part of the unit phasor.
func Unpack(packed []float32, bins, frames int) (Spectrum, error) {
	if bins < 1 || frames < 1 {
		return Spectrum{}, fmt.Errorf("%w: bins=%d frames=%d", ErrSpectrumShape, bins, frames)
	}
	if len(packed) != 2*bins*frames {
		return Spectrum{}, fmt.Errorf("%w: got %d values, want %d", ErrSpectrumShape, len(packed), 2*bins*frames)
	}

	half := bins * frames
	out := make([]complex128, half)
	for i := range half {
		mag := math.Exp(float64(packed[i]))
		sin := math.Sin(float64(packed[half+i]))
		cos := math.Sqrt(clamp(1-sin*sin, 0, 1))
		out[i] = complex(mag*cos, mag*sin)
	}

	return Spectrum{Bins: bins, Frames: frames, Data: out}, nil
}

// At returns the coefficient for bin b of frame f.
func (s Spectrum) At(b, f int) complex128 {
	return s.Data[b*s.Frames+f]
}

// HannWindow returns a periodic Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}

	return w
}

// ISTFT inverts a centered short-time spectrum with a periodic Hann window
// and window-sum-square normalization. The result holds hop*(frames-1)
// samples.
func ISTFT(spec Spectrum, nfft, hop int) ([]float32, error) {
	if spec.Bins != nfft/2+1 {
		return nil, fmt.Errorf("%w: %d bins for n_fft=%d", ErrSpectrumShape, spec.Bins, nfft)
	}
	if hop < 1 || hop > nfft {
		return nil, fmt.Errorf("invalid hop length %d for n_fft=%d", hop, nfft)
	}
	if spec.Frames < 1 {
		return nil, fmt.Errorf("%w: no frames", ErrSpectrumShape)
	}

	window := HannWindow(nfft)
	fullLen := nfft + hop*(spec.Frames-1)
	signal := make([]float64, fullLen)
	norm := make([]float64, fullLen)

	fft := fourier.NewFFT(nfft)
	coeff := make([]complex128, spec.Bins)
	frame := make([]float64, nfft)
	scale := 1 / float64(nfft)

	for f := range spec.Frames {
		for b := range spec.Bins {
			coeff[b] = spec.At(b, f)
		}
		// A real sequence has purely real DC and Nyquist terms.
		coeff[0] = complex(real(coeff[0]), 0)
		if nfft%2 == 0 {
			coeff[spec.Bins-1] = complex(real(coeff[spec.Bins-1]), 0)
		}

		fft.Sequence(frame, coeff)

		offset := f * hop
		for i, v := range frame {
			signal[offset+i] += v * scale * window[i]
			norm[offset+i] += window[i] * window[i]
		}
	}

	const tiny = 1e-11
	for i := range signal {
		if norm[i] > tiny {
			signal[i] /= norm[i]
		}
	}

	pad := nfft / 2
	n := hop * (spec.Frames - 1)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(signal[pad+i])
	}

	return out, nil
}

// Reconstruct unpacks the decoder output and inverts it to a waveform.
func Reconstruct(packed []float32, bins, frames int) ([]float32, error) {
	spec, err := Unpack(packed, bins, frames)
	if err != nil {
		return nil, err
	}

	return ISTFT(spec, 2*(bins-1), HopLength)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
