package phasedapp

import (
	"context"
	"errors"
	"sync"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
)

// ErrNoFrontend is returned for input requests while no front-end is attached.
var ErrNoFrontend = errors.New("phasedapp: no front-end attached")

// Relay forwards streamed command output and input requests to whichever
// front-end is running. Phases are constructed before the front-end exists,
// so they are handed the relay instead.
type Relay struct {
	mu    sync.RWMutex
	line  cmdrunner.LineFunc
	input phases.InputHandler
}

// NewRelay creates a detached relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Line forwards one line of output; it is dropped while detached.
func (r *Relay) Line(l cmdrunner.Line) {
	r.mu.RLock()
	fn := r.line
	r.mu.RUnlock()
	if fn != nil {
		fn(l)
	}
}

// RequestInput implements phases.InputHandler.
func (r *Relay) RequestInput(ctx context.Context, meta phases.PhaseMetadata, input phases.InputDefinition, reason string) (any, error) {
	r.mu.RLock()
	handler := r.input
	r.mu.RUnlock()
	if handler == nil {
		return nil, ErrNoFrontend
	}
	return handler.RequestInput(ctx, meta, input, reason)
}

func (r *Relay) attach(line cmdrunner.LineFunc, input phases.InputHandler) func() {
	if r == nil {
		return func() {}
	}
	r.mu.Lock()
	r.line, r.input = line, input
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.line, r.input = nil, nil
		r.mu.Unlock()
	}
}
