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

// rebootCmd implements subcommands.Command to reboot DUTs into a boot mode.
type rebootCmd struct {
	common commonFlags
	from   string
	usb    string
	noSync bool
}

var _ = subcommands.Command(&rebootCmd{})

func (*rebootCmd) Name() string     { return "reboot" }
func (*rebootCmd) Synopsis() string { return "reboot DUTs into a boot mode" }
func (*rebootCmd) Usage() string {
	return `Usage: reboot [flag]... <normal|dev|rec|minios> <target>...

Reset each target into the boot mode, even if it is already there.

`
}

func (c *rebootCmd) SetFlags(f *flag.FlagSet) {
	c.common.setFlags(f)
	f.StringVar(&c.from, "from", "", "mode the DUTs are in (needed to leave developer mode)")
	f.StringVar(&c.usb, "usb", "", "USB mux state set before the reset (off, host, dut)")
	f.BoolVar(&c.noSync, "nosync", false, "do not sync file systems before the reset")
}

func (c *rebootCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	to, duts, err := parseModeArg(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, c.Usage())
		return subcommands.ExitUsageError
	}
	opts := firmware.RebootOptions{SkipSync: c.noSync}
	if c.from != "" {
		if opts.From, err = firmware.ParseBootMode(c.from); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}
	if c.usb != "" {
		if opts.USBState, err = firmware.ParseUSBMuxState(c.usb); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}

	return runAll(ctx, &c.common, duts, func(ctx context.Context, s *session) error {
		o := opts
		if err := s.sw.RebootToMode(ctx, to, &o); err != nil {
			return err
		}
		logging.Infof(ctx, "Rebooted into %v mode", to)
		return nil
	})
}
