package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPhonemizeCmd() *cobra.Command {
	var (
		text     string
		language string
	)

	cmd := &cobra.Command{
		Use:   "phonemize",
		Short: "Print the phoneme string and token ids for text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg.Server.Workers = 1

			svc, err := newSynthService(cfg)
			if err != nil {
				return fmt.Errorf("initialize synthesis service: %w", err)
			}
			defer svc.Close()

			phonemes, ids, err := svc.Phonemize(cmd.Context(), inputText, language)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "phonemes: %s\ntokens (%d): %s\n", phonemes, len(ids), formatIDs(ids))

			return err
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to phonemize (if empty, read from stdin)")
	cmd.Flags().StringVar(&language, "language", "", "Language tag (overrides config)")

	return cmd
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	return strings.Join(parts, " ")
}
