package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimulatedClient fakes a message provider for development and load
// testing. It sleeps a small random latency and fails a configurable
// fraction of sends with a mix of transient and permanent errors.
type SimulatedClient struct {
	mu          sync.Mutex
	successRate float64 // 0.0 to 1.0 (e.g. 0.95 = 95% success)
	rand        *rand.Rand
}

// NewSimulatedClient creates a simulated provider.
// successRate: probability of successful send (0.0 to 1.0)
func NewSimulatedClient(successRate float64) *SimulatedClient {
	if successRate < 0.0 {
		successRate = 0.0
	}
	if successRate > 1.0 {
		successRate = 1.0
	}

	return &SimulatedClient{
		successRate: successRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SimulatedClient) Name() string {
	return "simulated"
}

// Send simulates delivering a message: 50-200ms latency, then success or
// a classified failure drawn from the configured rate.
func (c *SimulatedClient) Send(ctx context.Context, target, message string) error {
	c.mu.Lock()
	latency := time.Duration(50+c.rand.Intn(150)) * time.Millisecond
	roll := c.rand.Float64()
	failure := c.rand.Intn(len(simulatedFailures))
	rate := c.successRate
	c.mu.Unlock()

	timer := time.NewTimer(latency)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return Transient("send cancelled", ctx.Err())
	case <-timer.C:
	}

	if roll < rate {
		return nil
	}

	f := simulatedFailures[failure]
	if f.permanent {
		return Permanent(f.message, nil)
	}
	return Transient(f.message, nil)
}

// SetSuccessRate updates the success rate (used by the seeder demo)
func (c *SimulatedClient) SetSuccessRate(rate float64) {
	if rate < 0.0 {
		rate = 0.0
	}
	if rate > 1.0 {
		rate = 1.0
	}

	c.mu.Lock()
	c.successRate = rate
	c.mu.Unlock()
}

var simulatedFailures = []struct {
	message   string
	permanent bool
}{
	{"network timeout", false},
	{"provider rate limit exceeded", false},
	{"service temporarily unavailable", false},
	{"invalid destination number", true},
	{"message content rejected", true},
}
