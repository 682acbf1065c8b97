// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"

	"go.chromium.org/fwmode/errors"
)

// screen is a firmware screen passed by an action.
type screen struct {
	name   string
	action func(ctx context.Context) error
}

// rebootPlan is the sequence that reboots the DUT into a mode.
type rebootPlan struct {
	to BootMode
	// usb is applied to the USB mux before the reset.
	usb       USBMuxState
	resetName string
	reset     func(ctx context.Context) error
	// screens are passed in order, each after the firmware screen
	// sub-timeout.
	screens []screen
	// bypass is the last screen, if any. Its action is repeated when the
	// DUT does not come up.
	bypass *screen
}

func (s *Switcher) warmReset() (string, func(ctx context.Context) error) {
	return "warm reset", s.dbg.WarmReset
}

func (s *Switcher) coldReset(recovery bool) (string, func(ctx context.Context) error) {
	name := "cold reset"
	if recovery {
		name = "cold reset into recovery"
	}
	return name, func(ctx context.Context) error { return s.dbg.ColdReset(ctx, recovery) }
}

// planFor returns the plan rebooting from mode from to mode to.
func (s *Switcher) planFor(to, from BootMode) (*rebootPlan, error) {
	p := &rebootPlan{to: to}
	switch to {
	case BootModeNormal:
		if from == BootModeDeveloper {
			p.resetName, p.reset = s.warmReset()
			p.screens = []screen{{"to-norm confirmation", s.nav.devToNormal}}
			return p, nil
		}
		p.usb = USBMuxHost
		p.resetName, p.reset = s.coldReset(false)
	case BootModeDeveloper:
		p.bypass = &screen{"developer warning", s.nav.devBootInternal}
		if from == BootModeDeveloper {
			p.resetName, p.reset = s.warmReset()
			return p, nil
		}
		p.usb = USBMuxHost
		p.resetName, p.reset = s.coldReset(true)
		p.screens = []screen{{"recovery to-dev", s.nav.recToDev}}
	case BootModeRecovery, BootModeMiniOS:
		sc, err := s.bypassScreen(to)
		if err != nil {
			return nil, err
		}
		p.bypass = sc
		if to == BootModeRecovery {
			p.usb = USBMuxHost
		}
		p.resetName, p.reset = s.coldReset(true)
	default:
		return nil, errors.Errorf("cannot reboot to %v mode", to)
	}
	return p, nil
}

// bypassScreen returns the final screen on the way to mode to.
func (s *Switcher) bypassScreen(to BootMode) (*screen, error) {
	switch to {
	case BootModeDeveloper:
		return &screen{"developer warning", s.nav.devBootInternal}, nil
	case BootModeMiniOS:
		if !s.nav.caps.HasMenuUI {
			return nil, errors.Errorf("%s has no menu UI to boot MiniOS", s.cfg.Platform)
		}
		return &screen{"MiniOS selection", s.nav.bootMiniOS}, nil
	case BootModeRecovery:
		return &screen{"recovery insert-USB", s.bypassRecovery}, nil
	}
	return nil, errors.Errorf("no firmware screen to bypass for %v mode", to)
}
