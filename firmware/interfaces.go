// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"time"
)

// DebugInterface issues hardware actions on a DUT independently of its OS.
// Each method completes within its own short timeout or returns an error.
// Two calls are two separate hardware events; nothing is atomic across
// calls.
type DebugInterface interface {
	// PressPowerButton holds the power button for hold.
	PressPowerButton(ctx context.Context, hold time.Duration) error
	// ColdReset power-cycles the DUT. If recovery is true the DUT boots
	// into recovery mode.
	ColdReset(ctx context.Context, recovery bool) error
	// WarmReset resets the AP without cutting power.
	WarmReset(ctx context.Context) error
	// SetLid opens or closes the lid.
	SetLid(ctx context.Context, open bool) error
	// SetUSBMux routes the USB stick to the host or to the DUT, or cuts it.
	SetUSBMux(ctx context.Context, state USBMuxState) error
	// SendKeys taps the given keys in order.
	SendKeys(ctx context.Context, keys ...Key) error
	// ReadConsoleLine returns the next line from the AP console. It returns
	// ErrConsoleIdle if no line arrives within timeout.
	ReadConsoleLine(ctx context.Context, timeout time.Duration) (string, error)
}

// DUTProxy reaches the OS running on a DUT.
type DUTProxy interface {
	// IsReachable reports whether the DUT answers on its management channel
	// within timeout. It never returns an error; failures mean false.
	IsReachable(ctx context.Context, timeout time.Duration) bool
	// Run runs a shell command on the DUT and returns its stdout.
	Run(ctx context.Context, cmd string, args ...string) (string, error)
}
