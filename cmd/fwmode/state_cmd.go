// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/subcommands"

	"go.chromium.org/fwmode/firmware"
)

// stateCmd implements subcommands.Command to print the boot state of DUTs.
type stateCmd struct {
	common commonFlags
	expect string

	mu  sync.Mutex // guards out
	out io.Writer
}

var _ = subcommands.Command(&stateCmd{})

func (*stateCmd) Name() string     { return "state" }
func (*stateCmd) Synopsis() string { return "print the boot state of DUTs" }
func (*stateCmd) Usage() string {
	return `Usage: state [flag]... <target>...

Print each target's boot mode, firmware slot and recovery reason.

`
}

func (c *stateCmd) SetFlags(f *flag.FlagSet) {
	c.common.setFlags(f)
	f.StringVar(&c.expect, "expect", "", "comma-separated modes; fail if a DUT is in none of them")
}

// parseExpectation parses a comma-separated list of modes.
func parseExpectation(s string) (firmware.Expectation, error) {
	if s == "" {
		return firmware.Expectation{}, nil
	}
	var modes []firmware.BootMode
	for _, p := range strings.Split(s, ",") {
		m, err := firmware.ParseBootMode(strings.TrimSpace(p))
		if err != nil {
			return firmware.Expectation{}, err
		}
		modes = append(modes, m)
	}
	return firmware.ExpectMode(modes...), nil
}

func (c *stateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	want, err := parseExpectation(c.expect)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return runAll(ctx, &c.common, f.Args(), func(ctx context.Context, s *session) error {
		st, err := s.sw.ReadState(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		fmt.Fprintf(c.out, "%s\t%v\n", s.dut.HostName(), st)
		c.mu.Unlock()
		if !firmware.CheckState(st, want) {
			return &firmware.UnexpectedStateError{Actual: st, Expected: want}
		}
		return nil
	})
}
