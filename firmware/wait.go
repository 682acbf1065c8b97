// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
)

// pollResult describes a finished poll.
type pollResult struct {
	ok      bool
	polls   int
	elapsed time.Duration
}

// poll calls check at fixed intervals, measured from the start of the poll,
// until it returns true or timeout elapses. The check is given the longest
// time it may take. A non-nil error is returned only if ctx is done.
func poll(ctx context.Context, clk clock.Clock, timeout, interval, pingTimeout time.Duration,
	check func(ctx context.Context, timeout time.Duration) bool) (pollResult, error) {
	start := clk.Now()
	deadline := start.Add(timeout)
	var res pollResult
	for {
		if err := ctx.Err(); err != nil {
			res.elapsed = clk.Since(start)
			return res, err
		}
		now := clk.Now()
		if !now.Before(deadline) {
			res.elapsed = now.Sub(start)
			return res, nil
		}
		pt := pingTimeout
		if rem := deadline.Sub(now); rem < pt {
			pt = rem
		}
		res.polls++
		if check(ctx, pt) {
			res.ok = true
			res.elapsed = clk.Since(start)
			return res, nil
		}
		next := start.Add(time.Duration(res.polls) * interval)
		if next.After(deadline) {
			next = deadline
		}
		if d := next.Sub(clk.Now()); d > 0 {
			if err := sleep(ctx, clk, d); err != nil {
				res.elapsed = clk.Since(start)
				return res, err
			}
		}
	}
}

// sleep pauses for d on clk or until ctx is done.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
