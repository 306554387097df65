// Package bench provides benchmarking primitives for the kokorotts bench command.
package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index       int
	Cold        bool // true for the first run (cold-start)
	Duration    time.Duration
	WAVDuration time.Duration
	RTF         float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize computes Stats over runs, including the mean RTF.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	var rtf float64
	for i, r := range runs {
		durations[i] = r.Duration
		rtf += r.RTF
	}

	s := ComputeStats(durations)
	if len(runs) > 0 {
		s.MeanRTF = rtf / float64(len(runs))
	}

	return s
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// AudioDuration is the playback length of n samples at sampleRate.
func AudioDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}

	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// WAVDuration returns the playback duration of a mono 16-bit WAV file.
func WAVDuration(wav []byte) (time.Duration, error) {
	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		return 0, err
	}

	return AudioDuration(len(samples), rate), nil
}

// ---------------------------------------------------------------------------
// Targets
// ---------------------------------------------------------------------------

// Target renders the benchmark text once and reports the audio length.
type Target func(ctx context.Context) (time.Duration, error)

// Synthesizer is the in-process synthesis surface; *tts.Service implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, req tts.RunConfig) (tts.AudioBuffer, error)
}

// ServiceTarget benchmarks an in-process synthesizer.
func ServiceTarget(s Synthesizer, text string, req tts.RunConfig) Target {
	return func(ctx context.Context) (time.Duration, error) {
		buf, err := s.Synthesize(ctx, text, req)
		if err != nil {
			return 0, err
		}

		return buf.Duration(), nil
	}
}

// HTTPTarget benchmarks POST /tts on a running server at addr.
func HTTPTarget(client *http.Client, addr, text string, req tts.RunConfig) Target {
	if client == nil {
		client = http.DefaultClient
	}

	url := strings.TrimRight(addr, "/") + "/tts"
	if !strings.Contains(addr, "://") {
		url = "http://" + url
	}

	return func(ctx context.Context) (time.Duration, error) {
		body, err := json.Marshal(map[string]any{
			"text":     text,
			"voice":    req.Voice,
			"speed":    req.Speed,
			"language": req.Language,
		})
		if err != nil {
			return 0, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		wav, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("POST %s: %s: %s", url, resp.Status, strings.TrimSpace(string(wav)))
		}

		return WAVDuration(wav)
	}
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Options control a benchmark session.
type Options struct {
	Runs int
	// CPUProfile receives a pprof CPU profile of all runs when set.
	CPUProfile io.Writer
}

// Run calls target opts.Runs times. The first run is marked cold. Each run
// carries a pprof "bench_run" label so profiles can be split per run.
func Run(ctx context.Context, target Target, opts Options) ([]RunResult, error) {
	if opts.Runs < 1 {
		return nil, fmt.Errorf("runs must be >= 1, got %d", opts.Runs)
	}

	if opts.CPUProfile != nil {
		if err := pprof.StartCPUProfile(opts.CPUProfile); err != nil {
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	results := make([]RunResult, 0, opts.Runs)

	for i := range opts.Runs {
		var (
			audioDur time.Duration
			err      error
		)

		start := time.Now()
		pprof.Do(ctx, pprof.Labels("bench_run", strconv.Itoa(i)), func(ctx context.Context) {
			audioDur, err = target(ctx)
		})
		elapsed := time.Since(start)

		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}

		results = append(results, RunResult{
			Index:       i,
			Cold:        i == 0,
			Duration:    elapsed,
			WAVDuration: audioDur,
			RTF:         CalcRTF(elapsed, audioDur),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			float64(r.WAVDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.WAVDuration.Milliseconds()),
			RTF:        r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
