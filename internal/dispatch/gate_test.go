package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateWaitPassesWhenNotPaused(t *testing.T) {
	g := newGate()
	require.NoError(t, g.Wait(context.Background()))
	assert.False(t, g.Paused())
}

func TestGateBlocksUntilResume(t *testing.T) {
	g := newGate()
	g.Pause()
	assert.True(t, g.Paused())

	released := make(chan error, 1)
	go func() { released <- g.Wait(context.Background()) }()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	g.Resume()

	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestGateWaitAbortsOnCancel(t *testing.T) {
	g := newGate()
	g.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() { released <- g.Wait(ctx) }()

	cancel()

	select {
	case err := <-released:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestGatePauseSignalFires(t *testing.T) {
	g := newGate()
	sig := g.PauseSignal()

	select {
	case <-sig:
		t.Fatal("signal fired before pause")
	default:
	}

	g.Pause()

	select {
	case <-sig:
	default:
		t.Fatal("signal did not fire on pause")
	}

	// After resume a fresh signal channel is armed.
	g.Resume()
	select {
	case <-g.PauseSignal():
		t.Fatal("signal fired after resume")
	default:
	}
}

func TestGatePauseResumeIdempotent(t *testing.T) {
	g := newGate()
	g.Resume() // no-op
	g.Pause()
	g.Pause() // no-op
	g.Resume()
	g.Resume() // no-op
	assert.False(t, g.Paused())
}
