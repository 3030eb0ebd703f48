package ratelimit

import (
	"context"
	"time"
)

// Controller paces batch dispatch: a fixed delay after every batch and a
// provider-imposed wait whenever the provider signals a rate limit
type Controller struct {
	clock   Clock
	steady  time.Duration
	maxWait time.Duration
}

// NewController creates a Controller. maxWait caps provider-imposed waits;
// zero means uncapped.
func NewController(clock Clock, steady, maxWait time.Duration) *Controller {
	if clock == nil {
		clock = RealClock{}
	}
	return &Controller{clock: clock, steady: steady, maxWait: maxWait}
}

// Steady sleeps the fixed inter-batch delay
func (c *Controller) Steady(ctx context.Context) error {
	return c.clock.Sleep(ctx, c.steady)
}

// Penalize sleeps for the provider-imposed wait, capped by the configured
// maximum, and returns the duration actually waited
func (c *Controller) Penalize(ctx context.Context, wait time.Duration) (time.Duration, error) {
	wait = c.Effective(wait)
	if err := c.clock.Sleep(ctx, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

// Effective returns the wait Penalize would apply for a signaled wait
func (c *Controller) Effective(wait time.Duration) time.Duration {
	if wait < 0 {
		wait = 0
	}
	if c.maxWait > 0 && wait > c.maxWait {
		wait = c.maxWait
	}
	return wait
}

// Clock returns the clock the controller sleeps on
func (c *Controller) Clock() Clock {
	return c.clock
}
