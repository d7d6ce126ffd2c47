package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/procpool/pkg/client"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults for local
// child processes (30s timeout, 100ms interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 100*time.Millisecond)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForStatus waits for a task to report the given status
func (w *Waiter) WaitForStatus(ctx context.Context, c *client.Client, id, status string) error {
	return w.WaitFor(ctx, func() bool {
		t, err := c.Get(id)
		if err != nil || t == nil {
			return false
		}
		return string(t.Status) == status
	}, fmt.Sprintf("task %s to reach status %s", id, status))
}

// WaitForComplete waits for a task to reach any terminal status
func (w *Waiter) WaitForComplete(ctx context.Context, c *client.Client, id string) error {
	buckets, err := c.Statuses()
	if err != nil {
		return fmt.Errorf("failed to fetch status buckets: %w", err)
	}
	complete := buckets["complete"]

	return w.WaitFor(ctx, func() bool {
		t, err := c.Get(id)
		if err != nil || t == nil {
			return false
		}
		for _, s := range complete {
			if string(t.Status) == s {
				return true
			}
		}
		return false
	}, fmt.Sprintf("task %s to complete", id))
}

// WaitForDrained waits until nothing is queued or in progress
func (w *Waiter) WaitForDrained(ctx context.Context, c *client.Client) error {
	return w.WaitFor(ctx, func() bool {
		queued, err := c.Queued()
		if err != nil || len(queued) > 0 {
			return false
		}
		inProgress, err := c.ByState("in_progress")
		if err != nil {
			return false
		}
		return len(inProgress) == 0
	}, "the pool to drain")
}

// WaitForRunning waits until at least n tasks are processing
func (w *Waiter) WaitForRunning(ctx context.Context, c *client.Client, n int) error {
	return w.WaitFor(ctx, func() bool {
		running, err := c.Running()
		if err != nil {
			return false
		}
		return len(running) >= n
	}, fmt.Sprintf("%d tasks to be running", n))
}
