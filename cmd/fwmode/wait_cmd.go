// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"go.chromium.org/fwmode/internal/logging"
)

const defaultWaitTimeout = time.Minute

// waitCmd implements subcommands.Command to wait for DUTs to come up or go
// down.
type waitCmd struct {
	common  commonFlags
	offline bool
	timeout time.Duration
}

var _ = subcommands.Command(&waitCmd{})

func (*waitCmd) Name() string     { return "wait" }
func (*waitCmd) Synopsis() string { return "wait for DUTs to become reachable or unreachable" }
func (*waitCmd) Usage() string {
	return `Usage: wait [flag]... <target>...

Wait until each target answers on SSH, or stops answering with -offline.

`
}

func (c *waitCmd) SetFlags(f *flag.FlagSet) {
	c.common.setFlags(f)
	f.BoolVar(&c.offline, "offline", false, "wait for the DUTs to become unreachable")
	f.DurationVar(&c.timeout, "timeout", defaultWaitTimeout, "how long to wait")
}

func (c *waitCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 || c.timeout <= 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return runAll(ctx, &c.common, f.Args(), func(ctx context.Context, s *session) error {
		if c.offline {
			if err := s.sw.WaitForClientOffline(ctx, c.timeout); err != nil {
				return err
			}
			logging.Info(ctx, "DUT is offline")
			return nil
		}
		if err := s.sw.WaitForClient(ctx, c.timeout); err != nil {
			return err
		}
		logging.Info(ctx, "DUT is online")
		return nil
	})
}
