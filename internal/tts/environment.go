package tts

import (
	"sync"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/g2p"
	"github.com/example/go-kokoro-tts/internal/onnx"
)

// Environment is the process-wide state every Synthesizer shares: the G2P
// lock and the ONNX Runtime library. Create one per process, pass it to
// Init, and Close it after the last Synthesizer is closed.
type Environment struct {
	runtime config.RuntimeConfig
	g2p     *g2p.Engine

	mu     sync.Mutex
	ort    *onnx.Env
	closed bool
}

// NewEnvironment prepares an environment. The ONNX Runtime library is loaded
// on first use, so G2P-only tools never need it.
func NewEnvironment(rt config.RuntimeConfig) *Environment {
	return &Environment{
		runtime: rt,
		g2p:     g2p.NewEngine(),
	}
}

// G2P returns the shared engine lock.
func (e *Environment) G2P() *g2p.Engine {
	return e.g2p
}

// ONNX returns the runtime environment, loading the library on first call.
func (e *Environment) ONNX() (*onnx.Env, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, classify(ErrConfig, nil, "environment closed")
	}

	if e.ort == nil {
		env, err := onnx.OpenEnv(e.runtime)
		if err != nil {
			return nil, classify(ErrResource, err, "onnx runtime")
		}

		e.ort = env
	}

	return e.ort, nil
}

// Close releases the runtime library and rejects later G2P calls.
func (e *Environment) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.closed = true
	_ = e.g2p.Close()

	if e.ort != nil {
		e.ort.Close()
		e.ort = nil
	}
}
