package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedAlwaysSucceeds(t *testing.T) {
	client := NewSimulatedClient(1.0)

	for i := 0; i < 5; i++ {
		require.NoError(t, client.Send(context.Background(), "+254700000001", "hello"))
	}
}

func TestSimulatedAlwaysFailsWithClassifiedError(t *testing.T) {
	client := NewSimulatedClient(0.0)

	err := client.Send(context.Background(), "+254700000001", "hello")
	require.Error(t, err)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, []Classification{ClassTransient, ClassPermanent}, se.Classification)
}

func TestSimulatedCancelledContext(t *testing.T) {
	client := NewSimulatedClient(1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := client.Send(ctx, "+254700000001", "hello")

	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.ErrorIs(t, err, context.Canceled)
	// The simulated latency is at least 50ms; cancellation must not wait it out.
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSimulatedClampsSuccessRate(t *testing.T) {
	client := NewSimulatedClient(7.5)
	require.NoError(t, client.Send(context.Background(), "+254700000001", "hello"))

	client.SetSuccessRate(-1)
	require.Error(t, client.Send(context.Background(), "+254700000001", "hello"))
}
