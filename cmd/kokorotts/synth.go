package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// synthService is the part of *tts.Service the CLI drives.
type synthService interface {
	Synthesize(ctx context.Context, text string, req tts.RunConfig) (tts.AudioBuffer, error)
	Phonemize(ctx context.Context, text, language string) (string, []int64, error)
	Close()
}

var newSynthService = func(cfg config.Config) (synthService, error) {
	return tts.NewService(cfg)
}

func newSynthCmd() *cobra.Command {
	var (
		text      string
		out       string
		req       tts.RunConfig
		normalize bool
		dcBlock   bool
		fadeInMS  float64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			// The service pool is sized by server.workers; one is enough here.
			cfg.Server.Workers = 1

			svc, err := newSynthService(cfg)
			if err != nil {
				return fmt.Errorf("initialize synthesis service: %w", err)
			}
			defer svc.Close()

			buf, err := svc.Synthesize(cmd.Context(), inputText, req)
			if err != nil {
				return err
			}

			samples := audio.ApplyHooks(buf.Samples, postHooks(synthDSPOptions{
				Normalize:  normalize,
				DCBlock:    dcBlock,
				FadeInMS:   fadeInMS,
				SampleRate: buf.SampleRate,
			})...)

			wav, err := audio.EncodeWAV(samples, buf.SampleRate)
			if err != nil {
				return fmt.Errorf("encode WAV: %w", err)
			}

			return writeSynthOutput(out, wav, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&req.Voice, "voice", "", "Voice name (overrides config)")
	cmd.Flags().Float64Var(&req.Speed, "speed", 0, "Speaking rate multiplier (overrides config)")
	cmd.Flags().StringVar(&req.Language, "language", "", "Language tag (overrides config)")
	cmd.Flags().IntVar(&req.SampleRate, "sample-rate", 0, "Output sample rate in Hz (overrides config)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Peak-normalize output audio")
	cmd.Flags().BoolVar(&dcBlock, "dc-block", false, "Apply DC-block high-pass filter")
	cmd.Flags().Float64Var(&fadeInMS, "fade-in-ms", 0, "Apply linear fade-in duration in milliseconds")

	return cmd
}

type synthDSPOptions struct {
	Normalize  bool
	DCBlock    bool
	FadeInMS   float64
	SampleRate int
}

// postHooks builds the optional post-synthesis DSP chain. DC blocking runs
// before normalization so the peak is measured on the filtered signal.
func postHooks(opts synthDSPOptions) []audio.Hook {
	var hooks []audio.Hook
	if opts.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 { return audio.DCBlock(s, opts.SampleRate) })
	}
	if opts.Normalize {
		hooks = append(hooks, audio.PeakNormalize)
	}
	if opts.FadeInMS > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.FadeIn(s, opts.SampleRate, opts.FadeInMS/1000)
		})
	}

	return hooks
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}
