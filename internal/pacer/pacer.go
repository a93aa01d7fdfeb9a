// Package pacer enforces a campaign's minimum delay between consecutive
// send starts. The delay is measured from the start of the previous send,
// not its completion, so slow provider responses do not throttle the
// campaign below its configured rate while fast ones never exceed it.
package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out the sends of one campaign.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a pacer with the given minimum inter-message delay.
// A non-positive delay disables pacing.
func New(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	// Burst 1: exactly one send token, refilled every delay interval.
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next send may start. It returns early with the
// context's error when the worker is paused or cancelled mid-wait.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
