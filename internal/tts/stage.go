package tts

import (
	"context"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/onnx"
)

// Graph names inside a model bundle manifest, in execution order.
const (
	StageDuration = "duration"
	StageProsody  = "prosody"
	StageHarmonic = "harmonic"
	StageDecoder  = "decoder"
)

// StageNames lists the four graphs a bundle must provide.
var StageNames = []string{StageDuration, StageProsody, StageHarmonic, StageDecoder}

// Port names.
const (
	portInputIDs  = "input_ids"
	portStyle     = "ref_s"
	portTextMask  = "text_mask"
	portDuration  = "duration"
	portTokenFeat = "d"
	portFrameFeat = "en"
	portAlignment = "pred_aln_trg"
	portPitch     = "F0_pred"
	portNoise     = "N_pred"
	portEmbedding = "asr"
	portHarmonic  = "har"
	portSpectrum  = "x"
)

// Stage runs one model graph on named tensors.
type Stage interface {
	Run(ctx context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error)
	Close()
}

// checkedStage validates inputs and outputs against the manifest's port
// descriptions around an inner Stage.
type checkedStage struct {
	graph onnx.Graph
	inner Stage
}

func (s checkedStage) Run(ctx context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	for _, node := range s.graph.Inputs {
		t, ok := inputs[node.Name]
		if !ok {
			return nil, fmt.Errorf("%s: missing input %q", s.graph.Name, node.Name)
		}

		if err := node.Check(t); err != nil {
			return nil, fmt.Errorf("%s: %w", s.graph.Name, err)
		}
	}

	outputs, err := s.inner.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}

	for _, node := range s.graph.Outputs {
		if _, ok := outputs[node.Name]; !ok {
			return nil, fmt.Errorf("%s: graph returned no %q", s.graph.Name, node.Name)
		}
	}

	return outputs, nil
}

func (s checkedStage) Close() { s.inner.Close() }

// openStages opens one session per bundle graph. On failure the sessions
// opened so far are closed.
func openStages(env *onnx.Env, m *onnx.Manifest) (map[string]Stage, error) {
	stages := make(map[string]Stage, len(StageNames))

	for _, name := range StageNames {
		g, ok := m.Graph(name)
		if !ok {
			closeStages(stages)
			return nil, fmt.Errorf("manifest %s has no %q graph", m.Path(), name)
		}

		runner, err := env.NewRunner(g)
		if err != nil {
			closeStages(stages)
			return nil, err
		}

		stages[name] = checkedStage{graph: g, inner: runner}
	}

	return stages, nil
}

func closeStages(stages map[string]Stage) {
	for _, s := range stages {
		s.Close()
	}
}

// checkContract verifies that the bundle's declared ports agree with the
// window length and the spectrum layout the reconstruction expects.
func checkContract(m *onnx.Manifest, maxSeqLen int) error {
	required := map[string][]string{
		StageDuration: {portInputIDs, portStyle, portTextMask},
		StageProsody:  {portFrameFeat, portStyle, portInputIDs, portTextMask, portAlignment},
		StageHarmonic: {portPitch},
		StageDecoder:  {portEmbedding, portPitch, portNoise, portStyle, portHarmonic},
	}
	produced := map[string][]string{
		StageDuration: {portDuration, portTokenFeat},
		StageProsody:  {portPitch, portNoise, portEmbedding},
		StageHarmonic: {portHarmonic},
		StageDecoder:  {portSpectrum},
	}

	for _, name := range StageNames {
		g, ok := m.Graph(name)
		if !ok {
			return fmt.Errorf("manifest has no %q graph", name)
		}

		for _, in := range required[name] {
			if _, ok := g.Input(in); !ok {
				return fmt.Errorf("graph %q lacks input %q", name, in)
			}
		}

		for _, out := range produced[name] {
			if _, ok := g.Output(out); !ok {
				return fmt.Errorf("graph %q lacks output %q", name, out)
			}
		}
	}

	duration, _ := m.Graph(StageDuration)
	ids, _ := duration.Input(portInputIDs)
	if err := expectDim(ids, 1, int64(maxSeqLen)); err != nil {
		return err
	}

	mask, _ := duration.Input(portTextMask)
	if err := expectDType(mask, onnx.DTypeUint8); err != nil {
		return err
	}

	decoder, _ := m.Graph(StageDecoder)
	x, _ := decoder.Output(portSpectrum)

	return expectDim(x, 1, 2*audio.Bins)
}

// expectDType fails when node declares an element type other than want.
func expectDType(node onnx.NodeInfo, want onnx.TensorDType) error {
	got, err := onnx.CanonicalDType(node.DType)
	if err != nil {
		return fmt.Errorf("port %q: %w", node.Name, err)
	}

	if got != want {
		return fmt.Errorf("port %q declares %s, want %s", node.Name, got, want)
	}

	return nil
}

// expectDim fails when node declares a fixed size other than want at axis.
// Symbolic axes and undeclared shapes pass.
func expectDim(node onnx.NodeInfo, axis int, want int64) error {
	dims, err := node.Dims()
	if err != nil {
		return err
	}

	if axis >= len(dims) || dims[axis] < 0 {
		return nil
	}

	if dims[axis] != want {
		return fmt.Errorf("port %q declares %d at axis %d, want %d", node.Name, dims[axis], axis, want)
	}

	return nil
}
