package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRefreshWaitTimeout is returned to a queued request that waited longer
// than WaitTimeout for a refresh in flight.
var ErrRefreshWaitTimeout = errors.New("client: timed out waiting for token refresh")

type coordinatorState int

const (
	stateIdle coordinatorState = iota
	stateRefreshing
)

// refreshCoordinator serializes token refreshes: the first request to hit an
// auth failure becomes the leader and performs the refresh; everyone else
// queues and is released FIFO with the leader's result.
//
// State is per-instance. Two Clients never share a coordinator.
type refreshCoordinator struct {
	mu      sync.Mutex
	state   coordinatorState
	waiters []chan error

	waitTimeout time.Duration
}

func newRefreshCoordinator(waitTimeout time.Duration) *refreshCoordinator {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &refreshCoordinator{waitTimeout: waitTimeout}
}

// run funnels callers into one refresh. The leader executes fn; late
// arrivals block until the leader finishes and observe the same error.
func (c *refreshCoordinator) run(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	if c.state == stateRefreshing {
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		refreshCoalescedTotal.Inc()
		return c.wait(ctx, ch)
	}
	c.state = stateRefreshing
	c.mu.Unlock()

	err := fn()
	c.finish(err)
	return err
}

// wait blocks a queued caller until release, context cancellation, or the
// wait timeout.
func (c *refreshCoordinator) wait(ctx context.Context, ch chan error) error {
	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		c.abandon(ch)
		return ctx.Err()
	case <-timer.C:
		c.abandon(ch)
		return ErrRefreshWaitTimeout
	}
}

// finish releases every queued waiter in arrival order and returns the
// coordinator to idle.
func (c *refreshCoordinator) finish(err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// abandon removes a waiter that gave up, so finish does not block on it.
func (c *refreshCoordinator) abandon(ch chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
