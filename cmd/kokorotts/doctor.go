package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/doctor"
	"github.com/example/go-kokoro-tts/internal/model"
	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

func newDoctorCmd() *cobra.Command {
	var smoke bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "g2p backend: %s\n", cfg.G2P.Backend)

			result := doctor.Run(doctorConfig(cfg), out)

			if smoke {
				verifyErr := model.VerifyONNX(cmd.Context(), model.VerifyOptions{
					ModelDir: cfg.Paths.ModelDir,
					Runtime:  cfg.Runtime,
					Stdout:   out,
					Stderr:   cmd.ErrOrStderr(),
				})
				if verifyErr != nil {
					result.AddFailure(fmt.Sprintf("model verify: %v", verifyErr))
					_, _ = fmt.Fprintf(out, "%s model verify: %v\n", doctor.FailMark, verifyErr)
				} else {
					_, _ = fmt.Fprintf(out, "%s model verify: ok\n", doctor.PassMark)
				}
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&smoke, "smoke", false, "Also run every graph once on zero inputs")

	return cmd
}

func doctorConfig(cfg config.Config) doctor.Config {
	return doctor.Config{
		Runtime: func() (onnx.RuntimeInfo, error) {
			return onnx.DetectRuntime(cfg.Runtime)
		},
		EspeakVersion: doctor.EspeakCommandVersion(cfg.G2P.Command),
		SkipEspeak:    cfg.G2P.Backend != config.G2PEspeak,
		G2PResource:   cfg.G2PResourcePath(),
		ModelDir:      cfg.Paths.ModelDir,
		VoiceFiles:    collectVoiceFiles(cfg.Paths.ModelDir),
	}
}

// collectVoiceFiles returns absolute paths of the installed voices so each
// style table can be loaded and size-checked.
func collectVoiceFiles(modelDir string) []string {
	vm, err := voice.NewManager(filepath.Join(modelDir, tts.VoicesDir))
	if err != nil {
		return nil
	}

	voices := vm.ListVoices()

	paths := make([]string, 0, len(voices))
	for _, v := range voices {
		resolved, err := vm.ResolvePath(v.ID)
		if err != nil {
			paths = append(paths, v.Path)
			continue
		}

		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}

		paths = append(paths, resolved)
	}

	return paths
}
