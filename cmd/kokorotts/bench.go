package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/bench"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		req          tts.RunConfig
		runs         int
		format       string
		rtfThreshold float64
		serverAddr   string
		cpuProfile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			var target bench.Target
			if serverAddr != "" {
				target = bench.HTTPTarget(nil, serverAddr, text, req)
			} else {
				cfg.Server.Workers = 1

				svc, err := newSynthService(cfg)
				if err != nil {
					return fmt.Errorf("initialize synthesis service: %w", err)
				}
				defer svc.Close()

				target = bench.ServiceTarget(svc, text, req)
			}

			opts := bench.Options{Runs: runs}
			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return fmt.Errorf("create cpu profile: %w", err)
				}
				defer f.Close()

				opts.CPUProfile = f
			}

			results, err := bench.Run(cmd.Context(), target, opts)
			if err != nil {
				return err
			}

			stats := bench.Summarize(results)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&req.Voice, "voice", "", "Voice name (overrides config)")
	cmd.Flags().Float64Var(&req.Speed, "speed", 0, "Speaking rate multiplier (overrides config)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Benchmark POST /tts on a running server instead of in-process")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile of the runs to this file")

	return cmd
}
