// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/internal/logging"
)

// setupCmd implements subcommands.Command to bring DUTs into a boot mode.
type setupCmd struct {
	common   commonFlags
	allowGBB bool
	from     string
	usb      string
}

var _ = subcommands.Command(&setupCmd{})

func (*setupCmd) Name() string     { return "setup" }
func (*setupCmd) Synopsis() string { return "bring DUTs into a boot mode" }
func (*setupCmd) Usage() string {
	return `Usage: setup [flag]... <normal|dev|rec|minios> <target>...

Bring each target into the boot mode unless it is already there.

`
}

func (c *setupCmd) SetFlags(f *flag.FlagSet) {
	c.common.setFlags(f)
	f.BoolVar(&c.allowGBB, "allowgbb", false, "switch developer mode by rewriting GBB flags")
	f.StringVar(&c.from, "from", "", "mode assumed when the current mode cannot be read")
	f.StringVar(&c.usb, "usb", "", "USB mux state applied first (off, host, dut)")
}

func (c *setupCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	to, duts, err := parseModeArg(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, c.Usage())
		return subcommands.ExitUsageError
	}
	req := firmware.TransitionRequest{To: to, AllowGBBForce: c.allowGBB}
	if c.from != "" {
		if req.From, err = firmware.ParseBootMode(c.from); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}
	if c.usb != "" {
		if req.USBState, err = firmware.ParseUSBMuxState(c.usb); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}

	return runAll(ctx, &c.common, duts, func(ctx context.Context, s *session) error {
		o := s.sw.Transition(ctx, req)
		if o.Kind != firmware.OutcomeSuccess {
			return o.Err
		}
		logging.Infof(ctx, "DUT is in %v mode", to)
		return nil
	})
}
