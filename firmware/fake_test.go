// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/testutil"
)

// fakeDevice simulates a DUT with keyboard firmware screens. It implements
// both DebugInterface and DUTProxy, and advances only with its clock.
type fakeDevice struct {
	clk       *testutil.StepClock
	bootDelay time.Duration

	devMode bool
	// screen is the firmware screen shown, or "" when the OS is booting or
	// running.
	screen string
	// booted is the mode of the running OS.
	booted BootMode
	// bootAt is when the OS becomes reachable; zero if it never does.
	bootAt time.Time
	// menu enables the menu UI on the recovery screen.
	menu    bool
	menuIdx int

	gbbFlags          uint32
	disableDevRequest bool

	// usbBootMode is the mode booted from USB; BootModeRecovery if unset.
	usbBootMode BootMode
	// ignoreUSB is the number of USB insertions the firmware misses.
	ignoreUSB int
	// ignoreResets is the number of resets that have no effect.
	ignoreResets int
	rejectResets bool
	console      []string

	trace         []string
	lastReachable bool
	pings         int
	resets        int
	usbInserts    int
}

// newFakeDevice returns a device running the OS in mode.
func newFakeDevice(clk *testutil.StepClock, mode BootMode) *fakeDevice {
	d := &fakeDevice{
		clk:       clk,
		bootDelay: 5 * time.Second,
		devMode:   mode == BootModeDeveloper,
		booted:    mode,
		bootAt:    clk.Now(),
		menuIdx:   2,
	}
	d.lastReachable = d.reachable()
	return d
}

// newParkedDevice returns a device showing a firmware screen.
func newParkedDevice(clk *testutil.StepClock, screen string) *fakeDevice {
	d := newFakeDevice(clk, BootModeNormal)
	d.halt(screen)
	d.lastReachable = false
	return d
}

func (d *fakeDevice) reachable() bool {
	return d.screen == "" && !d.bootAt.IsZero() && !d.clk.Now().Before(d.bootAt)
}

func (d *fakeDevice) boot(mode BootMode) {
	d.screen = ""
	d.booted = mode
	d.bootAt = d.clk.Now().Add(d.bootDelay)
}

func (d *fakeDevice) halt(screen string) {
	d.screen = screen
	d.bootAt = time.Time{}
	d.menuIdx = 2
}

func (d *fakeDevice) resetBoot() {
	switch {
	case d.gbbFlags&GBBFlagForceDevSwitchOn != 0:
		d.devMode = true
		d.boot(BootModeDeveloper)
	case d.disableDevRequest:
		d.disableDevRequest = false
		d.devMode = false
		d.boot(BootModeNormal)
	case d.devMode:
		d.halt("dev")
	default:
		d.boot(BootModeNormal)
	}
}

func (d *fakeDevice) reset(name string, f func()) error {
	d.resets++
	d.trace = append(d.trace, name)
	if d.rejectResets {
		return errors.New("servod: invalid control")
	}
	if d.ignoreResets > 0 {
		d.ignoreResets--
		return nil
	}
	f()
	return nil
}

func (d *fakeDevice) PressPowerButton(ctx context.Context, hold time.Duration) error {
	d.trace = append(d.trace, "power")
	return nil
}

func (d *fakeDevice) ColdReset(ctx context.Context, recovery bool) error {
	if recovery {
		return d.reset("cold_reset:rec", func() { d.halt("recovery") })
	}
	return d.reset("cold_reset", d.resetBoot)
}

func (d *fakeDevice) WarmReset(ctx context.Context) error {
	return d.reset("warm_reset", d.resetBoot)
}

func (d *fakeDevice) SetLid(ctx context.Context, open bool) error {
	d.trace = append(d.trace, fmt.Sprintf("lid:%t", open))
	return nil
}

func (d *fakeDevice) SetUSBMux(ctx context.Context, state USBMuxState) error {
	d.trace = append(d.trace, "usb_mux:"+state.String())
	if state != USBMuxDUT || d.screen != "recovery" {
		return nil
	}
	d.usbInserts++
	if d.ignoreUSB > 0 {
		d.ignoreUSB--
		return nil
	}
	mode := d.usbBootMode
	if mode == BootModeUnknown {
		mode = BootModeRecovery
	}
	d.boot(mode)
	return nil
}

func (d *fakeDevice) SendKeys(ctx context.Context, keys ...Key) error {
	for _, k := range keys {
		d.trace = append(d.trace, "key:"+string(k))
		switch {
		case d.screen == "recovery" && d.menu:
			switch k {
			case KeyUp:
				if d.menuIdx > 0 {
					d.menuIdx--
				}
			case KeyDown:
				if d.menuIdx < 5 {
					d.menuIdx++
				}
			case KeyEnter:
				if d.menuIdx == 1 {
					d.boot(BootModeMiniOS)
				}
			}
		case d.screen == "recovery" && k == KeyCtrlD:
			d.screen = "todev"
		case d.screen == "todev" && k == KeyEnter:
			d.devMode = true
			d.halt("dev")
		case d.screen == "dev" && k == KeyCtrlD:
			d.boot(BootModeDeveloper)
		case d.screen == "dev" && k == KeyEnter:
			d.screen = "tonorm"
		case d.screen == "tonorm" && k == KeyEnter:
			d.devMode = false
			d.boot(BootModeNormal)
		}
	}
	return nil
}

func (d *fakeDevice) ReadConsoleLine(ctx context.Context, timeout time.Duration) (string, error) {
	if len(d.console) == 0 {
		return "", ErrConsoleIdle
	}
	line := d.console[0]
	d.console = d.console[1:]
	return line, nil
}

func (d *fakeDevice) IsReachable(ctx context.Context, timeout time.Duration) bool {
	d.pings++
	r := d.reachable()
	if r != d.lastReachable {
		if r {
			d.trace = append(d.trace, "online")
		} else {
			d.trace = append(d.trace, "offline")
		}
		d.lastReachable = r
	}
	return r
}

func (d *fakeDevice) Run(ctx context.Context, cmd string, args ...string) (string, error) {
	if !d.reachable() {
		return "", errors.New("ssh: connect: connection refused")
	}
	switch cmd {
	case "sync":
		return "", nil
	case "cat":
		if d.booted == BootModeMiniOS {
			return "cros_minios console=ttyS0\n", nil
		}
		return "cros_secure console=ttyS0\n", nil
	case "crossystem":
		if len(args) == 1 && args[0] == "disable_dev_request=1" {
			d.disableDevRequest = true
			return "", nil
		}
		return d.crossystem(), nil
	case "futility":
		if len(args) >= 2 && args[1] == "--get" {
			return fmt.Sprintf("flags: 0x%08x\n", d.gbbFlags), nil
		}
		if len(args) == 4 && args[1] == "--set" {
			v, err := strconv.ParseUint(strings.TrimPrefix(args[3], "--flags="), 0, 32)
			if err != nil {
				return "", err
			}
			d.gbbFlags = uint32(v)
			return "", nil
		}
	}
	return "", errors.Errorf("unexpected command %s %v", cmd, args)
}

func (d *fakeDevice) crossystem() string {
	typ, act, reason := "normal", "A", 0
	switch d.booted {
	case BootModeDeveloper:
		typ = "developer"
	case BootModeRecovery, BootModeMiniOS:
		typ, act, reason = "recovery", "(error)", RecoveryROManual
	}
	return fmt.Sprintf(`arch                    = x86_64                         # Platform architecture
mainfw_act              = %s                              # Active main firmware
mainfw_type             = %s                         # Active main firmware type
recovery_reason         = %d                              # Recovery mode reason for current boot
`, act, typ, reason)
}

// filterTrace returns the entries of trace matching any of prefixes.
func filterTrace(trace []string, prefixes ...string) []string {
	var out []string
	for _, t := range trace {
		for _, p := range prefixes {
			if strings.HasPrefix(t, p) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
