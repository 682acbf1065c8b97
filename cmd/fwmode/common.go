// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"strings"

	"code.cloudfoundry.org/clock"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/fwmode/dut"
	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/internal/logging"
	"go.chromium.org/fwmode/servo"
)

// commonFlags holds flags shared by all commands that talk to DUTs.
type commonFlags struct {
	configDir    string
	platform     string
	model        string
	servos       string
	keyFile      string
	keyDir       string
	proxyCommand string
	satlab       string
}

func (c *commonFlags) setFlags(f *flag.FlagSet) {
	f.StringVar(&c.configDir, "config", "", "directory holding platform config files; built-in defaults if empty")
	f.StringVar(&c.platform, "platform", "", "platform (board) name used to pick the config")
	f.StringVar(&c.model, "model", "", "model name used to pick a per-model config override")
	f.StringVar(&c.servos, "servo", "", "comma-separated servo host specs, one per target (host[:port[:ssh:N]], host:port:nossh, *docker_servod)")
	f.StringVar(&c.keyFile, "keyfile", "", "path to SSH private key")
	f.StringVar(&c.keyDir, "keydir", "", "directory containing SSH keys")
	f.StringVar(&c.proxyCommand, "proxycommand", "", "ssh_config ProxyCommand used to reach DUTs")
	f.StringVar(&c.satlab, "satlab", servo.DefaultSatlabAddress, "satlab RPC server used to start servod containers")
}

// loadConfig returns the config of the selected platform.
func (c *commonFlags) loadConfig() (*firmware.Config, error) {
	if c.configDir == "" {
		cfg := firmware.DefaultConfig()
		if c.platform != "" {
			cfg.Platform = c.platform
		}
		return cfg, nil
	}
	if c.platform == "" {
		return nil, errors.New("-platform is required with -config")
	}
	return firmware.LoadConfig(c.configDir, c.platform, c.model)
}

// target is a DUT and the servo attached to it.
type target struct {
	dut   string
	servo string
}

// pairTargets matches DUTs with the servo specs in servos. An empty
// servos means servod on localhost for a single DUT.
func pairTargets(duts []string, servos string) ([]target, error) {
	if len(duts) == 0 {
		return nil, errors.New("no target given")
	}
	var specs []string
	if servos != "" {
		specs = strings.Split(servos, ",")
	}
	switch {
	case len(specs) == 0 && len(duts) == 1:
		specs = []string{""}
	case len(specs) != len(duts):
		return nil, errors.Errorf("got %d servo specs for %d targets", len(specs), len(duts))
	}
	seen := make(map[string]bool)
	var ts []target
	for i, d := range duts {
		if seen[d] {
			return nil, errors.Errorf("duplicate target %q", d)
		}
		seen[d] = true
		ts = append(ts, target{dut: d, servo: strings.TrimSpace(specs[i])})
	}
	return ts, nil
}

// session is an open connection to one DUT and its servo.
type session struct {
	dut  *dut.DUT
	pxy  *servo.Proxy
	ctrl *servo.Controller
	sw   *firmware.Switcher
}

func openSession(ctx context.Context, cf *commonFlags, t target) (_ *session, retErr error) {
	cfg, err := cf.loadConfig()
	if err != nil {
		return nil, err
	}
	names := servo.DefaultControlNames()
	if err := names.Override(cfg.ServoControls); err != nil {
		return nil, errors.Wrapf(err, "bad servo_controls in %s config", cfg.Platform)
	}

	s := &session{}
	defer func() {
		if retErr != nil {
			s.close(ctx)
		}
	}()
	if s.dut, err = dut.New(t.dut, cf.keyFile, cf.keyDir, cf.proxyCommand); err != nil {
		return nil, err
	}
	if s.pxy, err = servo.NewProxy(ctx, t.servo, servo.ProxyOptions{
		KeyFile:       cf.keyFile,
		KeyDir:        cf.keyDir,
		SatlabAddress: cf.satlab,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to servo for %s", t.dut)
	}
	clk := clock.NewClock()
	s.ctrl = servo.NewController(s.pxy.Servo(), names, clk)
	if s.sw, err = firmware.NewSwitcher(s.ctrl, s.dut, cfg, firmware.WithClock(clk)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) close(ctx context.Context) {
	if s.ctrl != nil {
		if err := s.ctrl.Close(ctx); err != nil {
			logging.Info(ctx, "Failed to stop console capture: ", err)
		}
	}
	if s.pxy != nil {
		s.pxy.Close(ctx)
	}
	if s.dut != nil {
		s.dut.Close(ctx)
	}
}

// runAll runs f against every target in parallel, each with its own
// session and log prefix.
func runAll(ctx context.Context, cf *commonFlags, duts []string, f func(ctx context.Context, s *session) error) subcommands.ExitStatus {
	ts, err := pairTargets(duts, cf.servos)
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitUsageError
	}

	failed := make([]bool, len(ts))
	var g errgroup.Group
	for i, t := range ts {
		i, t := i, t
		g.Go(func() error {
			ctx := ctx
			if len(ts) > 1 {
				ctx = logging.SetLogPrefix(ctx, t.dut+": ")
			}
			if err := runOne(ctx, cf, t, f); err != nil {
				logging.Infof(ctx, "Failed: %v", describeError(err))
				failed[i] = true
			}
			// Failures are reported per target; other targets keep going.
			return nil
		})
	}
	g.Wait()

	for _, f := range failed {
		if f {
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

func runOne(ctx context.Context, cf *commonFlags, t target, f func(ctx context.Context, s *session) error) error {
	s, err := openSession(ctx, cf, t)
	if err != nil {
		return err
	}
	defer s.close(ctx)
	err = f(ctx, s)
	logging.Debugf(ctx, "Switcher states: %v", s.sw.History())
	return err
}

// describeError formats err with its outcome kind and the last known
// device state.
func describeError(err error) string {
	o := firmware.Classify(err)
	msg := o.Kind.String() + ": " + err.Error()
	if st := firmware.TerminalState(err); st != nil {
		msg += " (device state: " + st.String() + ")"
	}
	return msg
}

// parseModeArg parses the mode given as the first positional argument.
func parseModeArg(f *flag.FlagSet) (firmware.BootMode, []string, error) {
	if f.NArg() < 2 {
		return firmware.BootModeUnknown, nil, errors.New("want a mode and at least one target")
	}
	m, err := firmware.ParseBootMode(f.Arg(0))
	if err != nil {
		return firmware.BootModeUnknown, nil, err
	}
	return m, f.Args()[1:], nil
}
