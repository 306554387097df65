package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/onnx"
)

// VerifyOptions select the bundle and graphs for VerifyONNX.
type VerifyOptions struct {
	ModelDir string
	Runtime  config.RuntimeConfig
	// Graphs limits the run to the named graphs; empty means all.
	Graphs []string
	Stdout io.Writer
	Stderr io.Writer
}

var runVerify = runVerifyImpl

// VerifyONNX loads every graph of the bundle in ModelDir and runs it once on
// zero-filled inputs built from the manifest. Symbolic axes become 1.
func VerifyONNX(ctx context.Context, opts VerifyOptions) error {
	if opts.ModelDir == "" {
		return errors.New("model dir is required")
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	m, err := onnx.LoadManifest(filepath.Join(opts.ModelDir, onnx.ManifestName))
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	var graphs []onnx.Graph
	for _, g := range m.Graphs() {
		if len(opts.Graphs) > 0 && !slices.Contains(opts.Graphs, g.Name) {
			continue
		}

		for _, input := range g.Inputs {
			if _, err := onnx.NewZeroTensor(input.DType, input.Shape); err != nil {
				return fmt.Errorf("graph %q input %q invalid: %w", g.Name, input.Name, err)
			}
		}

		graphs = append(graphs, g)
	}

	for _, name := range opts.Graphs {
		if _, ok := m.Graph(name); !ok {
			return fmt.Errorf("graph %q not in manifest", name)
		}
	}

	return runVerify(ctx, graphs, opts)
}

func runVerifyImpl(ctx context.Context, graphs []onnx.Graph, opts VerifyOptions) error {
	env, err := onnx.OpenEnv(opts.Runtime)
	if err != nil {
		return fmt.Errorf("initialize ONNX Runtime: %w", err)
	}
	defer env.Close()

	var failures []string

	for _, g := range graphs {
		shapes, err := smoke(ctx, env, g)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", g.Name, err)
			failures = append(failures, g.Name)

			continue
		}

		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s %s\n", g.Name, shapes)
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d graph(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}

// smoke runs g once and describes the output shapes.
func smoke(ctx context.Context, env *onnx.Env, g onnx.Graph) (string, error) {
	runner, err := env.NewRunner(g)
	if err != nil {
		return "", err
	}
	defer runner.Close()

	inputs, err := zeroInputs(g)
	if err != nil {
		return "", err
	}

	outputs, err := runner.Run(ctx, inputs)
	if err != nil {
		return "", fmt.Errorf("run inference: %w", err)
	}

	return describeOutputs(g, outputs)
}

func zeroInputs(g onnx.Graph) (map[string]*onnx.Tensor, error) {
	inputs := make(map[string]*onnx.Tensor, len(g.Inputs))
	for _, input := range g.Inputs {
		t, err := onnx.NewZeroTensor(input.DType, input.Shape)
		if err != nil {
			return nil, fmt.Errorf("build input %q tensor: %w", input.Name, err)
		}

		inputs[input.Name] = t
	}

	return inputs, nil
}

func describeOutputs(g onnx.Graph, outputs map[string]*onnx.Tensor) (string, error) {
	parts := make([]string, 0, len(g.Outputs))
	for _, out := range g.Outputs {
		t, ok := outputs[out.Name]
		if !ok {
			return "", fmt.Errorf("output %q missing", out.Name)
		}

		parts = append(parts, fmt.Sprintf("%s%v", out.Name, t.Shape()))
	}

	return strings.Join(parts, " "), nil
}
