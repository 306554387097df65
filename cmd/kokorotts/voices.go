package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

func newVoicesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List installed voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			mgr, err := voice.NewManager(filepath.Join(cfg.Paths.ModelDir, tts.VoicesDir))
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}

			voices := mgr.ListVoices()
			if voices == nil {
				voices = []voice.Voice{}
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(voices)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPATH\tLICENSE")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Path, v.License)
			}

			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")

	return cmd
}
