// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// miniOSMarker appears on the kernel command line of MiniOS.
const miniOSMarker = "cros_minios"

// defaultConsoleWindow bounds how long the checker listens to the console.
const defaultConsoleWindow = 5 * time.Second

// Checker reads the boot state of a DUT. It only reads; it never changes
// the device.
type Checker struct {
	dbg DebugInterface
	dut DUTProxy
	clk clock.Clock

	pingTimeout  time.Duration
	consoleWindow time.Duration

	modeRe, slotRe, reasonRe *regexp.Regexp
}

// NewChecker returns a Checker using the console patterns and timeouts of
// cfg. dbg may be nil if no console is available.
func NewChecker(dbg DebugInterface, dut DUTProxy, cfg *Config, clk clock.Clock) (*Checker, error) {
	c := &Checker{
		dbg:           dbg,
		dut:           dut,
		clk:           clk,
		pingTimeout:  cfg.PingTimeout.Duration(),
		consoleWindow: defaultConsoleWindow,
	}
	for _, p := range []struct {
		name string
		expr string
		re   **regexp.Regexp
	}{
		{paramMainfwType, cfg.ConsolePatterns.BootMode, &c.modeRe},
		{paramMainfwAct, cfg.ConsolePatterns.FirmwareSlot, &c.slotRe},
		{paramRecoveryReason, cfg.ConsolePatterns.RecoveryReason, &c.reasonRe},
	} {
		re, err := regexp.Compile(p.expr)
		if err != nil {
			return nil, errors.Wrapf(err, "bad console pattern for %s", p.name)
		}
		if re.NumSubexp() != 1 {
			return nil, errors.Errorf("console pattern for %s must have one group; got %d", p.name, re.NumSubexp())
		}
		*p.re = re
	}
	return c, nil
}

// ReadState reads the current state. It uses the DUT's shell when the DUT
// is reachable and falls back to the console otherwise. A *HardwareError is
// returned if neither answers.
func (c *Checker) ReadState(ctx context.Context) (*DeviceState, error) {
	var shellErr error
	if c.dut.IsReachable(ctx, c.pingTimeout) {
		st, err := c.readShell(ctx)
		if err == nil {
			return st, nil
		}
		shellErr = err
		logging.Debugf(ctx, "Reading state over shell failed: %v", err)
	}

	st, err := c.readConsole(ctx)
	if err == nil {
		return st, nil
	}
	if shellErr != nil {
		return nil, newHardwareError(errors.Join(shellErr, err), "no channel could read the device state")
	}
	return nil, newHardwareError(err, "DUT unreachable and no state on console")
}

func (c *Checker) readShell(ctx context.Context) (*DeviceState, error) {
	out, err := c.dut.Run(ctx, "crossystem")
	if err != nil {
		return nil, err
	}
	m, err := parseCrossystem(out)
	if err != nil {
		return nil, err
	}
	st, err := stateFromCrossystem(m)
	if err != nil {
		return nil, err
	}
	st.Reachable = true

	// MiniOS reports the recovery firmware type; its kernel command line
	// tells it apart.
	if cmdline, err := c.dut.Run(ctx, "cat", "/proc/cmdline"); err == nil && strings.Contains(cmdline, miniOSMarker) {
		st.BootMode = BootModeMiniOS
	}
	return st, nil
}

// readConsole listens to the AP console until the boot mode and the other
// fields are seen or the console goes quiet.
func (c *Checker) readConsole(ctx context.Context) (*DeviceState, error) {
	if c.dbg == nil {
		return nil, errors.New("no console available")
	}
	st := &DeviceState{}
	var sawMode, sawSlot, sawReason bool
	deadline := c.clk.Now().Add(c.consoleWindow)
	for !(sawMode && sawSlot && sawReason) {
		rem := deadline.Sub(c.clk.Now())
		if rem <= 0 {
			break
		}
		line, err := c.dbg.ReadConsoleLine(ctx, rem)
		if errors.Is(err, ErrConsoleIdle) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read console")
		}
		if m := c.modeRe.FindStringSubmatch(line); m != nil {
			if mode, err := ParseBootMode(m[1]); err == nil {
				st.BootMode = mode
			} else {
				st.BootMode = parseMainfwType(m[1])
			}
			sawMode = true
		}
		if m := c.slotRe.FindStringSubmatch(line); m != nil {
			st.FirmwareSlot = parseSlot(m[1])
			sawSlot = true
		}
		if m := c.reasonRe.FindStringSubmatch(line); m != nil {
			if r, err := strconv.Atoi(m[1]); err == nil {
				st.RecoveryReason = r
				sawReason = true
			}
		}
	}
	if !sawMode {
		return nil, errors.New("no boot mode found on console")
	}
	return st, nil
}

// Check reads the current state and compares it with want. It returns the
// state read, and an *UnexpectedStateError if it does not match.
func (c *Checker) Check(ctx context.Context, want Expectation) (*DeviceState, error) {
	st, err := c.ReadState(ctx)
	if err != nil {
		return nil, err
	}
	if !CheckState(st, want) {
		return st, &UnexpectedStateError{Actual: st, Expected: want}
	}
	return st, nil
}
