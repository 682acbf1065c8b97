// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// GBB flags used to force developer mode.
const (
	GBBFlagDevScreenShortDelay uint32 = 0x1
	GBBFlagForceDevSwitchOn    uint32 = 0x8
)

var gbbFlagsRe = regexp.MustCompile(`flags:\s*(0x[0-9a-fA-F]+)`)

// parseGBBFlags parses the output of "futility gbb --get --flags".
func parseGBBFlags(out string) (uint32, error) {
	m := gbbFlagsRe.FindStringSubmatch(out)
	if m == nil {
		return 0, errors.Errorf("no GBB flags in %q", out)
	}
	v, err := strconv.ParseUint(m[1], 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad GBB flags %q", m[1])
	}
	return uint32(v), nil
}

// updateGBBFlags sets the bits of set and clears the bits of clear in the
// GBB flags of the AP firmware on flash.
func (s *Switcher) updateGBBFlags(ctx context.Context, set, clear uint32) error {
	out, err := s.dut.Run(ctx, "futility", "gbb", "--get", "--flash", "--flags")
	if err != nil {
		return errors.Wrap(err, "failed to read GBB flags")
	}
	cur, err := parseGBBFlags(out)
	if err != nil {
		return err
	}
	want := cur&^clear | set
	if want == cur {
		logging.Debugf(ctx, "GBB flags already %#x", cur)
		return nil
	}
	logging.Infof(ctx, "Changing GBB flags from %#x to %#x", cur, want)
	if _, err := s.dut.Run(ctx, "futility", "gbb", "--set", "--flash", fmt.Sprintf("--flags=%#x", want)); err != nil {
		return errors.Wrap(err, "failed to write GBB flags")
	}
	return nil
}

// switchWithGBB turns developer mode on or off through GBB flags and
// reboots the DUT into target.
func (s *Switcher) switchWithGBB(ctx context.Context, target BootMode) error {
	const devFlags = GBBFlagForceDevSwitchOn | GBBFlagDevScreenShortDelay
	logging.Infof(ctx, "Switching to %v mode with GBB flags", target)
	if target == BootModeDeveloper {
		if err := s.updateGBBFlags(ctx, devFlags, 0); err != nil {
			return err
		}
	} else {
		if err := s.updateGBBFlags(ctx, 0, devFlags); err != nil {
			return err
		}
		if _, err := s.dut.Run(ctx, "crossystem", "disable_dev_request=1"); err != nil {
			return errors.Wrap(err, "failed to request normal mode")
		}
	}
	p := &rebootPlan{to: target}
	p.resetName, p.reset = s.warmReset()
	return s.execute(ctx, p, true)
}
