package audio

import "math"

// Hook transforms a buffer of samples; hooks run in order after synthesis.
type Hook func(samples []float32) []float32

// ApplyHooks runs each hook over samples in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
// Silence is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float64
	for _, v := range samples {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak == 0 {
		return samples
	}

	gain := float32(1 / peak)
	for i := range samples {
		samples[i] *= gain
	}

	return samples
}

// dcCutoffHz is the corner of the one-pole high-pass used by DCBlock.
const dcCutoffHz = 20.0

// DCBlock removes DC offset with a first-order high-pass filter.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate < 1 {
		return samples
	}

	r := 1 - 2*math.Pi*dcCutoffHz/float64(sampleRate)
	var prevIn, prevOut float64
	for i, v := range samples {
		x := float64(v)
		y := x - prevIn + r*prevOut
		prevIn, prevOut = x, y
		samples[i] = float32(y)
	}

	return samples
}

// FadeIn ramps the first sampleRate*seconds samples linearly from 0 to 1.
func FadeIn(samples []float32, sampleRate int, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	if n <= 0 || len(samples) <= n {
		return samples
	}

	ramp := linspace(0, 1, n)
	for i, g := range ramp {
		samples[i] *= g
	}

	return samples
}

// FadeOut multiplies the last sampleRate*seconds samples by a linear ramp
// from 1 down to 0. Buffers no longer than the ramp are left untouched.
func FadeOut(samples []float32, sampleRate int, seconds float64) []float32 {
	n := FadeSamples(sampleRate, seconds)
	if n <= 0 || len(samples) <= n {
		return samples
	}

	ramp := linspace(1, 0, n)
	start := len(samples) - n
	for i, g := range ramp {
		samples[start+i] *= g
	}

	return samples
}

// FadeSamples is the ramp length FadeOut uses for the given settings.
func FadeSamples(sampleRate int, seconds float64) int {
	if seconds <= 0 {
		return 0
	}

	return int(float64(sampleRate) * seconds)
}

// linspace matches numpy: n evenly spaced values including both ends.
func linspace(start, stop float32, n int) []float32 {
	out := make([]float32, n)
	if n == 1 {
		out[0] = start
		return out
	}

	step := (stop - start) / float32(n-1)
	for i := range out {
		out[i] = start + step*float32(i)
	}
	out[n-1] = stop

	return out
}
