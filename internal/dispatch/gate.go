package dispatch

import (
	"context"
	"sync"
)

// gate is the cooperative pause signal shared between the controller and
// one worker. The worker blocks on Wait between job claims; the pacer is
// interrupted through PauseSignal.
type gate struct {
	mu       sync.Mutex
	paused   bool
	pauseCh  chan struct{} // closed when a pause is requested
	resumeCh chan struct{} // closed when the pause is lifted
}

func newGate() *gate {
	return &gate{
		pauseCh: make(chan struct{}),
	}
}

// Pause requests suspension. Idempotent.
func (g *gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumeCh = make(chan struct{})
	close(g.pauseCh)
}

// Resume lifts a pause. Idempotent.
func (g *gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	g.pauseCh = make(chan struct{})
	close(g.resumeCh)
}

// Paused reports whether a pause is currently requested.
func (g *gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// PauseSignal returns a channel that closes when a pause is requested.
// Callers must re-fetch it after each resume.
func (g *gate) PauseSignal() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pauseCh
}

// Wait blocks while paused, without busy-polling, until resumed or the
// context is cancelled.
func (g *gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		resume := g.resumeCh
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}
