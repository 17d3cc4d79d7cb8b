// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides a discrete simulated clock shared by the tasks of a
// bus-functional model.
package sim // import "github.com/go-lpc/usbbfm/sim"

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Period12MHz is the period of the 12 MHz full-speed USB clock.
const Period12MHz = time.Second / 12_000_000

// Clock is a discrete simulated clock.
//
// Tasks attached to the clock run in lock-step: a rising edge is only
// produced once every attached task waits for it. When no task is
// attached, Edge produces a new edge immediately.
type Clock struct {
	period time.Duration
	cycle  atomic.Uint64

	mu       sync.Mutex
	attached int
	waiting  int
	edge     chan struct{}
	hooks    []func(cycle uint64)
}

// NewClock creates a new clock with the provided period.
// A zero period selects the 12 MHz USB full-speed clock.
func NewClock(period time.Duration) *Clock {
	if period <= 0 {
		period = Period12MHz
	}
	return &Clock{
		period: period,
		edge:   make(chan struct{}),
	}
}

// Period returns the clock period.
func (clk *Clock) Period() time.Duration { return clk.period }

// Cycle returns the number of edges produced so far.
func (clk *Clock) Cycle() uint64 { return clk.cycle.Load() }

// Now returns the current simulated time.
func (clk *Clock) Now() time.Duration {
	return time.Duration(clk.cycle.Load()) * clk.period
}

// OnEdge registers a function to be run at every rising edge, before any
// waiting task is resumed.
// Hooks must not call Edge, Attach or the detach function.
func (clk *Clock) OnEdge(f func(cycle uint64)) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	clk.hooks = append(clk.hooks, f)
}

// Attach registers a new task running in lock-step with the clock.
// The returned function detaches the task. It must be called exactly once.
func (clk *Clock) Attach() (detach func()) {
	clk.mu.Lock()
	clk.attached++
	clk.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			clk.mu.Lock()
			defer clk.mu.Unlock()
			clk.attached--
			if clk.waiting > 0 && clk.waiting >= clk.attached {
				clk.tick()
			}
		})
	}
}

// Edge suspends the calling task until the next rising edge.
func (clk *Clock) Edge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clk.mu.Lock()
	if clk.attached == 0 {
		clk.tick()
		clk.mu.Unlock()
		return nil
	}
	edge := clk.edge
	clk.waiting++
	if clk.waiting >= clk.attached {
		clk.tick()
		clk.mu.Unlock()
		return nil
	}
	clk.mu.Unlock()

	select {
	case <-edge:
		return nil
	case <-ctx.Done():
		clk.mu.Lock()
		defer clk.mu.Unlock()
		if clk.edge != edge {
			// edge produced concurrently.
			return nil
		}
		clk.waiting--
		return ctx.Err()
	}
}

// Edges waits for n rising edges.
func (clk *Clock) Edges(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		err := clk.Edge(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// tick produces a rising edge. clk.mu must be held.
func (clk *Clock) tick() {
	cycle := clk.cycle.Add(1)
	for _, f := range clk.hooks {
		f(cycle)
	}
	close(clk.edge)
	clk.edge = make(chan struct{})
	clk.waiting = 0
}
