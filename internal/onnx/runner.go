package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-kokoro-tts/internal/config"
)

const defaultAPIVersion = 23

// Env owns one loaded ONNX Runtime library and logging environment. All
// runners of a process share it; it must outlive them.
type Env struct {
	mu      sync.Mutex
	info    RuntimeInfo
	runtime *ort.Runtime
	env     *ort.Env
}

// OpenEnv detects and loads the ONNX Runtime library.
func OpenEnv(cfg config.RuntimeConfig) (*Env, error) {
	info, err := DetectRuntime(cfg)
	if err != nil {
		return nil, err
	}

	apiVersion := uint32(cfg.ORTAPIVersion)
	if apiVersion == 0 {
		apiVersion = defaultAPIVersion
	}

	runtime, err := ort.NewRuntime(info.LibraryPath, apiVersion)
	if err != nil {
		return nil, fmt.Errorf("ort runtime %s: %w", info.LibraryPath, err)
	}

	env, err := runtime.NewEnv("kokorotts", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env: %w", err)
	}

	return &Env{info: info, runtime: runtime, env: env}, nil
}

// Info describes the loaded library.
func (e *Env) Info() RuntimeInfo {
	return e.info
}

// NewRunner opens a session for one manifest graph.
func (e *Env) NewRunner(g Graph) (*Runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtime == nil {
		return nil, fmt.Errorf("ort env closed")
	}

	session, err := e.runtime.NewSession(e.env, g.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("ort session for %q (%s): %w", g.Name, g.Path, err)
	}

	return &Runner{graph: g, runtime: e.runtime, session: session}, nil
}

// Close releases the environment and unloads the library. Safe to call
// multiple times.
func (e *Env) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env != nil {
		e.env.Close()
		e.env = nil
	}

	if e.runtime != nil {
		_ = e.runtime.Close()
		e.runtime = nil
	}
}

// Runner executes one ONNX graph.
type Runner struct {
	graph   Graph
	runtime *ort.Runtime
	session *ort.Session
}

// Run executes the graph with the given named input tensors.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("run %q: session closed", r.graph.Name)
	}

	ortInputs := make(map[string]*ort.Value, len(inputs))
	defer closeORTValues(ortInputs)

	for name, t := range inputs {
		v, err := tensorToORT(r.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		ortInputs[name] = v
	}

	ortOutputs, err := r.session.Run(ctx, ortInputs)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.graph.Name, err)
	}
	defer closeORTValues(ortOutputs)

	results := make(map[string]*Tensor, len(ortOutputs))
	for name, v := range ortOutputs {
		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}

		results[name] = t
	}

	return results, nil
}

// Graph returns the manifest entry the runner was opened from.
func (r *Runner) Graph() Graph {
	return r.graph
}

// Close releases the session. Safe to call multiple times.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
}

func tensorToORT(runtime *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch data := t.data.(type) {
	case []float32:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []uint8:
		return ort.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
}

func ortToTensor(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeUint8:
		data, shape, err := ort.GetTensorData[uint8](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
