// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/internal/logging"
)

const (
	// keyPressValue taps a keyboard control.
	keyPressValue = "tab"
	// buttonHoldMs is how long volume buttons are held, in milliseconds.
	buttonHoldMs = "100"
	// warmResetHold is how long warm_reset is asserted.
	warmResetHold = 500 * time.Millisecond
	// recButtonHold is how long the recovery button is held.
	recButtonHold = 500 * time.Millisecond
	// consolePollInterval is how often cpu_uart_stream is read.
	consolePollInterval = 200 * time.Millisecond
)

// Values of image_usbkey_direction.
const (
	usbKeyToHost = "servo_sees_usbkey"
	usbKeyToDUT  = "dut_sees_usbkey"
)

// Controller performs the debug interface actions of the mode switcher
// with servo controls.
//
// A Controller is owned by a single goroutine.
type Controller struct {
	svo   *Servo
	names ControlNames
	clk   clock.Clock

	capturing bool
	partial   string
	lines     []string
}

var _ firmware.DebugInterface = (*Controller)(nil)

// NewController returns a Controller using names on svo.
func NewController(svo *Servo, names ControlNames, clk clock.Clock) *Controller {
	return &Controller{svo: svo, names: names, clk: clk}
}

// Close stops console capture.
func (c *Controller) Close(ctx context.Context) error {
	if !c.capturing {
		return nil
	}
	c.capturing = false
	return c.svo.Set(ctx, c.names.ConsoleCapture, "off")
}

// PressPowerButton holds the power button for hold.
func (c *Controller) PressPowerButton(ctx context.Context, hold time.Duration) error {
	return c.svo.Set(ctx, c.names.PowerKey, strconv.FormatFloat(hold.Seconds(), 'f', -1, 64))
}

// ColdReset power-cycles the DUT through power_state.
func (c *Controller) ColdReset(ctx context.Context, recovery bool) error {
	v := PowerStateReset
	if recovery {
		v = PowerStateRec
	}
	return c.svo.SetPowerState(ctx, c.names.PowerState, v)
}

// WarmReset pulses warm_reset.
func (c *Controller) WarmReset(ctx context.Context) error {
	if err := c.svo.Set(ctx, c.names.WarmReset, "on"); err != nil {
		return err
	}
	c.clk.Sleep(warmResetHold)
	return c.svo.Set(ctx, c.names.WarmReset, "off")
}

// SetLid opens or closes the lid.
func (c *Controller) SetLid(ctx context.Context, open bool) error {
	v := "no"
	if open {
		v = "yes"
	}
	return c.svo.Set(ctx, c.names.LidOpen, v)
}

// SetUSBMux routes the servo's USB stick.
func (c *Controller) SetUSBMux(ctx context.Context, state firmware.USBMuxState) error {
	var dir string
	switch state {
	case firmware.USBMuxUnset:
		return nil
	case firmware.USBMuxOff:
		return c.svo.Set(ctx, c.names.USBKeyPower, "off")
	case firmware.USBMuxHost:
		dir = usbKeyToHost
	case firmware.USBMuxDUT:
		dir = usbKeyToDUT
	default:
		return errors.Errorf("unknown USB mux state %v", state)
	}
	if err := c.svo.Set(ctx, c.names.USBKeyMux, dir); err != nil {
		return err
	}
	return c.svo.Set(ctx, c.names.USBKeyPower, "on")
}

// SendKeys taps keys in order.
func (c *Controller) SendKeys(ctx context.Context, keys ...firmware.Key) error {
	for _, k := range keys {
		if err := c.sendKey(ctx, k); err != nil {
			return errors.Wrapf(err, "failed to press %s", k)
		}
	}
	return nil
}

func (c *Controller) sendKey(ctx context.Context, k firmware.Key) error {
	switch k {
	case firmware.KeyCtrlD:
		return c.svo.Set(ctx, c.names.CtrlD, keyPressValue)
	case firmware.KeyCtrlU:
		return c.svo.Set(ctx, c.names.CtrlU, keyPressValue)
	case firmware.KeyCtrlR:
		return c.svo.Set(ctx, c.names.CtrlR, keyPressValue)
	case firmware.KeyEnter:
		return c.svo.Set(ctx, c.names.Enter, keyPressValue)
	case firmware.KeyUp:
		return c.svo.Set(ctx, c.names.ArrowUp, keyPressValue)
	case firmware.KeyDown:
		return c.svo.Set(ctx, c.names.ArrowDown, keyPressValue)
	case firmware.KeyVolumeUp:
		return c.svo.Set(ctx, c.names.VolumeUp, buttonHoldMs)
	case firmware.KeyVolumeDown:
		return c.svo.Set(ctx, c.names.VolumeDown, buttonHoldMs)
	case firmware.KeyVolumeUpDown:
		return c.svo.Set(ctx, c.names.VolumeUpDown, buttonHoldMs)
	case firmware.KeyRecovery:
		if err := c.svo.Set(ctx, c.names.RecMode, "on"); err != nil {
			return err
		}
		c.clk.Sleep(recButtonHold)
		return c.svo.Set(ctx, c.names.RecMode, "off")
	}
	return errors.Errorf("unsupported key %q", k)
}

// ReadConsoleLine returns the next complete line of the AP console. The
// first call starts capturing; output printed before it is lost.
func (c *Controller) ReadConsoleLine(ctx context.Context, timeout time.Duration) (string, error) {
	if !c.capturing {
		if err := c.svo.Set(ctx, c.names.ConsoleCapture, "on"); err != nil {
			return "", err
		}
		c.capturing = true
		logging.Debug(ctx, "Started AP console capture")
	}
	deadline := c.clk.Now().Add(timeout)
	for {
		if len(c.lines) > 0 {
			line := c.lines[0]
			c.lines = c.lines[1:]
			return line, nil
		}
		chunk, err := c.svo.Get(ctx, c.names.ConsoleStream)
		if err != nil {
			return "", err
		}
		c.feed(unquoteStream(chunk))
		if len(c.lines) > 0 {
			continue
		}
		rem := deadline.Sub(c.clk.Now())
		if rem <= 0 {
			return "", firmware.ErrConsoleIdle
		}
		if rem > consolePollInterval {
			rem = consolePollInterval
		}
		select {
		case <-c.clk.After(rem):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// feed appends console output to the line buffer.
func (c *Controller) feed(s string) {
	if s == "" {
		return
	}
	parts := strings.Split(c.partial+s, "\n")
	c.partial = parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		c.lines = append(c.lines, strings.TrimRight(p, "\r"))
	}
}

var streamEscapes = strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t", `\'`, "'", `\\`, `\`)

// unquoteStream decodes the Python literal servod returns for stream
// controls, e.g. 'foo\r\n'. Other values are returned as is.
func unquoteStream(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return streamEscapes.Replace(s[1 : len(s)-1])
	}
	return s
}
