// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package servo drives servo debug boards through servod's XML-RPC
// interface and adapts them to the firmware mode switcher.
//
// More details on servo: https://www.chromium.org/chromium-os/servo
package servo

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// PowerStateValue is a value of the power_state control.
type PowerStateValue string

// Values accepted by power_state.
const (
	PowerStateOn    PowerStateValue = "on"
	PowerStateOff   PowerStateValue = "off"
	PowerStateReset PowerStateValue = "reset"
	PowerStateRec   PowerStateValue = "rec"
)

// WatchdogValue names a servod watchdog.
type WatchdogValue string

// Watchdogs that a power cycle can trip.
const (
	WatchdogCCD  WatchdogValue = "ccd"
	WatchdogMain WatchdogValue = "main"
)

const (
	servoTypeControl      = "servo_type"
	ccdStateControl       = "ccd_state"
	watchdogAddControl    = "watchdog_add"
	watchdogRemoveControl = "watchdog_remove"

	// powerStateTimeout covers boards that hold the power button for
	// 12 seconds during a power_state change.
	powerStateTimeout = 30 * time.Second
)

// Servo is a client of one servod instance.
type Servo struct {
	rpc *rpcClient

	servoType string // cached; does not change while servod runs
	hasCCD    bool

	removedWatchdogs []WatchdogValue
}

// New returns a Servo talking to servod at host:port. No call is made.
func New(host string, port int) *Servo {
	return &Servo{rpc: newRPCClient(host, port)}
}

// Close restores any watchdogs removed through this Servo.
func (s *Servo) Close(ctx context.Context) error {
	var firstErr error
	for _, w := range s.removedWatchdogs {
		logging.Infof(ctx, "Restoring servo watchdog %q", w)
		if err := s.Set(ctx, watchdogAddControl, string(w)); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to restore watchdog %q", w)
		}
	}
	s.removedWatchdogs = nil
	return firstErr
}

// HasControl reports whether servod knows the control. Unknown controls
// make doc() fault; any other error is returned.
func (s *Servo) HasControl(ctx context.Context, name string) (bool, error) {
	err := s.rpc.call(ctx, 0, "doc", []interface{}{name})
	if err == nil {
		return true, nil
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return false, nil
	}
	return false, err
}

// Get returns the value of a control.
func (s *Servo) Get(ctx context.Context, name string) (string, error) {
	var v string
	if err := s.rpc.call(ctx, 0, "get", []interface{}{name}, &v); err != nil {
		return "", errors.Wrapf(err, "failed to get servo control %q", name)
	}
	return v, nil
}

// Set sets a control to value.
func (s *Servo) Set(ctx context.Context, name, value string) error {
	return s.SetTimeout(ctx, name, value, 0)
}

// SetTimeout is like Set but allows the call up to timeout.
func (s *Servo) SetTimeout(ctx context.Context, name, value string, timeout time.Duration) error {
	// servod's set() returns a redundant success flag; faults carry errors.
	if err := s.rpc.call(ctx, timeout, "set", []interface{}{name, value}); err != nil {
		return errors.Wrapf(err, "failed to set servo control %q to %q", name, value)
	}
	return nil
}

// GetOnOff reads an on/off control as a bool.
func (s *Servo) GetOnOff(ctx context.Context, name string) (bool, error) {
	v, err := s.Get(ctx, name)
	if err != nil {
		return false, err
	}
	switch v {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, errors.Errorf("servo control %q has non on/off value %q", name, v)
}

// ServoType returns servod's servo_type, for example
// "servo_v4_with_servo_micro_and_ccd_cr50".
func (s *Servo) ServoType(ctx context.Context) (string, error) {
	if s.servoType != "" {
		return s.servoType, nil
	}
	st, err := s.Get(ctx, servoTypeControl)
	if err != nil {
		return "", err
	}
	hasCCD := strings.Contains(st, "ccd_cr50") || strings.Contains(st, "ccd_gsc")
	if !hasCCD {
		ok, err := s.HasControl(ctx, ccdStateControl)
		if err != nil {
			return "", errors.Wrap(err, "failed to check for ccd_state")
		}
		if ok {
			if hasCCD, err = s.GetOnOff(ctx, ccdStateControl); err != nil {
				return "", err
			}
		}
	}
	s.servoType, s.hasCCD = st, hasCCD
	return st, nil
}

// WatchdogRemove disables a servod watchdog until Close.
func (s *Servo) WatchdogRemove(ctx context.Context, w WatchdogValue) error {
	if w == WatchdogCCD {
		st, err := s.ServoType(ctx)
		if err != nil {
			return err
		}
		if !s.hasCCD {
			logging.Debug(ctx, "No CCD; skipping watchdog removal")
			return nil
		}
		// A bare SuzyQ names its only watchdog "main".
		if strings.HasPrefix(st, "ccd_") {
			w = WatchdogMain
		}
	}
	if err := s.Set(ctx, watchdogRemoveControl, string(w)); err != nil {
		return err
	}
	s.removedWatchdogs = append(s.removedWatchdogs, w)
	return nil
}

// SetPowerState sets the power state control named ctrl. States that
// reset the EC drop the CCD watchdog first, or servod exits when the CCD
// connection bounces.
func (s *Servo) SetPowerState(ctx context.Context, ctrl string, v PowerStateValue) error {
	logging.Infof(ctx, "Setting %q to %q", ctrl, v)
	switch v {
	case PowerStateReset, PowerStateRec:
		if err := s.WatchdogRemove(ctx, WatchdogCCD); err != nil {
			return errors.Wrap(err, "failed to remove CCD watchdog")
		}
	}
	return s.SetTimeout(ctx, ctrl, string(v), powerStateTimeout)
}
