// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testutil

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// StepClock is a clock.Clock whose time only moves when code waits on it.
// Sleep, After, NewTimer and NewTicker advance the clock by the requested
// duration at once, so polling loops run without real delays.
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ clock.Clock = (*StepClock)(nil)

// NewStepClock returns a StepClock starting at start.
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

// Now returns the current fake time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *StepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Sleep advances the clock by d.
func (c *StepClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// After advances the clock by d and returns a channel holding the new time.
func (c *StepClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer advances the clock by d and returns a timer that has fired.
func (c *StepClock) NewTimer(d time.Duration) clock.Timer {
	t := &stepTimer{c: c, ch: make(chan time.Time, 1)}
	t.Reset(d)
	return t
}

// NewTicker returns a ticker holding a single tick d after now.
func (c *StepClock) NewTicker(d time.Duration) clock.Ticker {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return &stepTicker{ch: ch}
}

type stepTimer struct {
	c  *StepClock
	ch chan time.Time
}

func (t *stepTimer) C() <-chan time.Time { return t.ch }

func (t *stepTimer) Reset(d time.Duration) bool {
	select {
	case <-t.ch:
	default:
	}
	t.ch <- t.c.Advance(d)
	return false
}

func (t *stepTimer) Stop() bool { return false }

type stepTicker struct {
	ch chan time.Time
}

func (t *stepTicker) C() <-chan time.Time { return t.ch }

func (t *stepTicker) Stop() {}
