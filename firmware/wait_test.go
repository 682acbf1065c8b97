// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"testing"
	"time"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/testutil"
)

func TestPollFixedInterval(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	var at []time.Duration
	res, err := poll(context.Background(), clk, 5*time.Second, time.Second, time.Second,
		func(ctx context.Context, timeout time.Duration) bool {
			at = append(at, clk.Since(epoch))
			// A slow check does not delay the next one.
			clk.Advance(300 * time.Millisecond)
			return false
		})
	if err != nil {
		t.Fatal("poll failed: ", err)
	}
	if res.ok {
		t.Error("poll succeeded; want timeout")
	}
	want := []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}
	if len(at) != len(want) {
		t.Fatalf("Checked at %v; want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Errorf("Check %d at %v; want %v", i, at[i], want[i])
		}
	}
	if res.elapsed != 5*time.Second {
		t.Errorf("Elapsed = %v; want 5s", res.elapsed)
	}
}

func TestPollPingTimeoutClamped(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	var timeouts []time.Duration
	poll(context.Background(), clk, 2500*time.Millisecond, time.Second, 2*time.Second,
		func(ctx context.Context, timeout time.Duration) bool {
			timeouts = append(timeouts, timeout)
			return false
		})
	want := []time.Duration{2 * time.Second, 1500 * time.Millisecond, 500 * time.Millisecond}
	if len(timeouts) != len(want) {
		t.Fatalf("Check timeouts %v; want %v", timeouts, want)
	}
	for i := range want {
		if timeouts[i] != want[i] {
			t.Errorf("Check %d timeout %v; want %v", i, timeouts[i], want[i])
		}
	}
}

func TestPollCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clk := testutil.NewStepClock(epoch)
	if _, err := poll(ctx, clk, time.Minute, time.Second, time.Second,
		func(ctx context.Context, timeout time.Duration) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Errorf("poll returned %v; want %v", err, context.Canceled)
	}
}

func TestRetryOnlyTimeouts(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	p := RetryPolicy{MaxAttempts: 3, TimeoutPerAttempt: time.Minute, Backoff: 2 * time.Second}

	calls := 0
	err := retry(context.Background(), clk, p, func(ctx context.Context, deadline time.Time) error {
		calls++
		if got := deadline.Sub(clk.Now()); got != time.Minute {
			t.Errorf("Attempt %d deadline in %v; want 1m", calls, got)
		}
		return &TimeoutError{Op: "test"}
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Errorf("retry returned %v; want TimeoutError", err)
	}
	if calls != 3 {
		t.Errorf("retry made %d calls; want 3", calls)
	}
	if got := clk.Since(epoch); got != 4*time.Second {
		t.Errorf("retry backed off for %v; want 4s", got)
	}

	calls = 0
	retry(context.Background(), clk, p, func(ctx context.Context, deadline time.Time) error {
		calls++
		return newHardwareError(nil, "broken")
	})
	if calls != 1 {
		t.Errorf("retry made %d calls on a hardware error; want 1", calls)
	}

	calls = 0
	err = retry(context.Background(), clk, p, func(ctx context.Context, deadline time.Time) error {
		calls++
		return newHardwareError(&TimeoutError{Op: "wait for client"}, "bypass failed")
	})
	if calls != 1 {
		t.Errorf("retry made %d calls on a hardware error caused by a timeout; want 1", calls)
	}
	if o := Classify(err); o.Kind != OutcomeHardwareError {
		t.Errorf("Classify(%v).Kind = %v; want %v", err, o.Kind, OutcomeHardwareError)
	}
}
