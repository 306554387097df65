// Package align turns per-token duration predictions into a fixed frame
// budget and the one-hot alignment used to upsample token features.
package align

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DoubleInputThreshold is the longest token sequence that gets doubled.
const DoubleInputThreshold = 32

// MaxTokenFrames caps a single predicted duration so very small speeds
// cannot overflow the frame arithmetic.
const MaxTokenFrames = math.MaxInt32

// ErrInvalidInput reports arguments that cannot describe a duration plan.
var ErrInvalidInput = errors.New("invalid alignment input")

// Plan is a reconciled duration vector covering every position of the
// fixed-length token window, padding included.
type Plan struct {
	Durations   []int
	ActiveLen   int
	TotalFrames int
}

// FrameBudget is the fixed number of frames for a window of maxSeqLen tokens.
func FrameBudget(maxSeqLen int) int { return 2 * maxSeqLen }

// PredictDurations converts duration logits laid out as [rows x bins] into
// frame counts for the first activeLen rows: the sigmoid of every bin is
// summed, divided by speed, rounded and clamped to [1, MaxTokenFrames].
func PredictDurations(logits []float32, bins, activeLen int, speed float32) ([]int, error) {
	if bins < 1 || activeLen < 0 || activeLen*bins > len(logits) {
		return nil, fmt.Errorf("%w: %d logits for %d tokens x %d bins", ErrInvalidInput, len(logits), activeLen, bins)
	}

	if !(speed > 0) {
		return nil, fmt.Errorf("%w: speed %v must be positive", ErrInvalidInput, speed)
	}

	out := make([]int, activeLen)

	for i := range out {
		var sum float32
		for _, x := range logits[i*bins : (i+1)*bins] {
			sum += sigmoid(x)
		}

		frames := math.Round(float64(sum) / float64(speed))

		switch {
		case frames >= MaxTokenFrames:
			out[i] = MaxTokenFrames
		case frames < 1:
			out[i] = 1
		default:
			out[i] = int(frames)
		}
	}

	return out, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Reconcile fits pred, the durations of the active tokens, into the frame
// budget of a maxSeqLen window.
//
// When the active tokens overshoot, the longest tokens are shortened first:
// each pass orders tokens by current duration, descending and stable on
// index, and takes one frame from each token still above one frame until the
// overshoot is gone. Leftover budget is spread over the padding positions,
// the first remainder positions getting one extra frame.
func Reconcile(pred []int, maxSeqLen int) (Plan, error) {
	activeLen := len(pred)
	if activeLen > maxSeqLen {
		return Plan{}, fmt.Errorf("%w: %d active tokens exceed window of %d", ErrInvalidInput, activeLen, maxSeqLen)
	}

	durations := make([]int, maxSeqLen)
	copy(durations, pred)

	budget := FrameBudget(maxSeqLen)
	shrink(durations[:activeLen], sum(durations[:activeLen])-budget)

	remaining := budget - sum(durations[:activeLen])
	paddingLen := maxSeqLen - activeLen

	if remaining > 0 && paddingLen > 0 {
		share, extra := remaining/paddingLen, remaining%paddingLen
		for i := 0; i < paddingLen; i++ {
			durations[activeLen+i] = share
			if i < extra {
				durations[activeLen+i]++
			}
		}
	}

	return Plan{
		Durations:   durations,
		ActiveLen:   activeLen,
		TotalFrames: sum(durations),
	}, nil
}

// shrink removes up to excess frames from d, never going below one frame.
//
// The result equals repeated passes that each take one frame from every
// token above one frame, longest first and stable on index. Whole passes are
// applied at once; only the final partial pass needs an ordering.
func shrink(d []int, excess int) {
	if excess <= 0 || len(d) == 0 {
		return
	}

	maxD := 0
	for _, v := range d {
		maxD = max(maxD, v)
	}

	// removed(p) is the frame count taken by p whole passes.
	removed := func(p int) int {
		total := 0
		for _, v := range d {
			total += min(max(v-1, 0), p)
		}

		return total
	}

	passes := sort.Search(maxD, func(p int) bool { return removed(p+1) > excess })
	excess -= removed(passes)

	for i, v := range d {
		d[i] = v - min(max(v-1, 0), passes)
	}

	if excess == 0 {
		return
	}

	order := make([]int, len(d))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return d[order[a]] > d[order[b]] })

	for _, idx := range order {
		if excess == 0 || d[idx] <= 1 {
			return
		}

		d[idx]--
		excess--
	}
}

// ContentFrames sums the first n durations.
func ContentFrames(durations []int, n int) int {
	if n > len(durations) {
		n = len(durations)
	}

	return sum(durations[:n])
}

func sum(d []int) int {
	total := 0
	for _, v := range d {
		total += v
	}

	return total
}

// Double repeats a short token sequence so the model gets a usable frame
// budget, cutting the result to maxSeqLen. Sequences longer than
// DoubleInputThreshold are returned unchanged with false.
func Double(ids []int64, maxSeqLen int) ([]int64, bool) {
	if len(ids) > DoubleInputThreshold {
		return ids, false
	}

	out := make([]int64, 0, 2*len(ids))
	out = append(out, ids...)
	out = append(out, ids...)

	if len(out) > maxSeqLen {
		out = out[:maxSeqLen]
	}

	return out, true
}

// Pad copies ids into a zero-filled slice of length n.
func Pad(ids []int64, n int) []int64 {
	out := make([]int64, n)
	copy(out, ids)

	return out
}
