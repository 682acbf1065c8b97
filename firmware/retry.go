// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// RetryPolicy bounds the attempts of one reboot sequence.
type RetryPolicy struct {
	// MaxAttempts is the number of times a sequence is tried. At least 1.
	MaxAttempts int
	// TimeoutPerAttempt bounds every wait of one attempt. Must be positive.
	TimeoutPerAttempt time.Duration
	// Backoff is slept between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return DefaultConfig().RetryPolicy()
}

// Validate checks the policy's invariants.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.Errorf("max attempts must be at least 1; got %d", p.MaxAttempts)
	}
	if p.TimeoutPerAttempt <= 0 {
		return errors.Errorf("timeout per attempt must be positive; got %v", p.TimeoutPerAttempt)
	}
	if p.Backoff < 0 {
		return errors.Errorf("backoff must not be negative; got %v", p.Backoff)
	}
	return nil
}

// retry runs f up to p.MaxAttempts times. f is given the deadline of its
// attempt. Only a *TimeoutError is retried; any other error, including a
// *HardwareError caused by a timeout, is returned at once.
func retry(ctx context.Context, clk clock.Clock, p RetryPolicy, f func(ctx context.Context, deadline time.Time) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			logging.Infof(ctx, "Retrying (attempt %d/%d) after %v", attempt, p.MaxAttempts, p.Backoff)
			if serr := sleep(ctx, clk, p.Backoff); serr != nil {
				return errors.Wrap(serr, "interrupted while backing off")
			}
		}
		err = f(ctx, clk.Now().Add(p.TimeoutPerAttempt))
		if !retriable(err) {
			return err
		}
		logging.Infof(ctx, "Attempt %d/%d timed out: %v", attempt, p.MaxAttempts, err)
	}
	return err
}

func retriable(err error) bool {
	var te *TimeoutError
	var he *HardwareError
	return err != nil && errors.As(err, &te) && !errors.As(err, &he)
}
