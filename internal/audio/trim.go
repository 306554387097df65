package audio

import (
	"fmt"
	"math"
)

// FirstHalf keeps the leading half of a waveform synthesized from a doubled
// token sequence.
func FirstHalf(samples []float32) []float32 {
	return samples[:len(samples)/2]
}

// TrimByContent truncates samples to round(len * content/total), dropping
// audio rendered for padding tokens. A total of zero, or content covering
// the whole budget, leaves the buffer as is.
func TrimByContent(samples []float32, content, total int) []float32 {
	if total <= 0 || content >= total {
		return samples
	}
	if content < 0 {
		content = 0
	}

	ratio := float64(content) / float64(total)
	keep := int(math.Round(float64(len(samples)) * ratio))

	return samples[:min(keep, len(samples))]
}

// Resample converts samples between rates by linear interpolation.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from < 1 || to < 1 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if n < 1 {
		n = 1
	}

	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}

	return out, nil
}
