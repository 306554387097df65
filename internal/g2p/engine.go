package g2p

import (
	"errors"
	"sync"
)

// ErrEngineClosed is returned by Engine.Do after Close.
var ErrEngineClosed = errors.New("g2p engine closed")

// backendMu is the process-wide G2P lock. espeak-ng keeps global state, so
// at most one backend call runs at a time no matter how many Engines exist.
var backendMu sync.Mutex

// Engine gates a group of Phonemizers. Closing it rejects later calls from
// that group; every call, from any Engine, also takes the process-wide lock.
type Engine struct {
	mu     sync.Mutex
	closed bool
}

// NewEngine returns an open Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Do runs fn while holding the engine lock and the process-wide lock.
func (e *Engine) Do(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	backendMu.Lock()
	defer backendMu.Unlock()

	return fn()
}

// Close waits for an in-flight call and rejects later ones.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	return nil
}
