package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/model"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition and verification commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		hfRepo   string
		revision string
		outDir   string
		hfToken  string
		voices   []string
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a Kokoro model bundle from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hfRepo == "" {
				return errors.New("--hf-repo is required")
			}
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}
			if outDir == "" {
				cfg, err := requireConfig()
				if err != nil {
					return err
				}
				outDir = cfg.Paths.ModelDir
			}

			err := model.Download(cmd.Context(), model.DownloadOptions{
				Repo:     hfRepo,
				Revision: revision,
				OutDir:   outDir,
				HFToken:  hfToken,
				Voices:   voices,
				Endpoint: endpoint,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face repository holding the bundle")
	cmd.Flags().StringVar(&revision, "revision", "main", "Repository revision to pin")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory for the bundle (default: paths.model_dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")
	cmd.Flags().StringSliceVar(&voices, "voices", []string{"af_heart"}, "Voice ids to fetch into voices/")
	cmd.Flags().StringVar(&endpoint, "endpoint", model.DefaultEndpoint, "Hub endpoint")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var graphs []string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run every bundle graph once on zero-filled inputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			err = model.VerifyONNX(cmd.Context(), model.VerifyOptions{
				ModelDir: cfg.Paths.ModelDir,
				Runtime:  cfg.Runtime,
				Graphs:   graphs,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&graphs, "graph", nil, "Limit to these graphs (repeatable)")

	return cmd
}
