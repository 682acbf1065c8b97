// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// syncTimeout bounds the best-effort sync before a reboot.
const syncTimeout = 10 * time.Second

// TransitionRequest asks a Switcher to bring the DUT into a mode.
type TransitionRequest struct {
	// From is the mode the DUT is believed to be in. It is only used when
	// the current mode cannot be read.
	From BootMode
	To   BootMode
	// AllowGBBForce permits switching developer mode through GBB flags.
	AllowGBBForce bool
	// USBState, if set, is applied to the USB mux before anything else.
	USBState USBMuxState
}

// RebootOptions modifies RebootToMode.
type RebootOptions struct {
	// From is the mode the DUT is in. If unset, the DUT is assumed not to
	// be in developer mode.
	From BootMode
	// SkipSync skips flushing the DUT's file systems before the reset.
	SkipSync bool
	// USBState overrides the USB mux state set before the reset.
	USBState USBMuxState
}

// SwitcherOption configures a Switcher.
type SwitcherOption func(s *Switcher)

// WithClock sets the clock used for all waits.
func WithClock(clk clock.Clock) SwitcherOption {
	return func(s *Switcher) { s.clk = clk }
}

// WithRetryPolicy overrides the retry policy of the config.
func WithRetryPolicy(p RetryPolicy) SwitcherOption {
	return func(s *Switcher) { s.policy = p }
}

// WithChecker sets the checker used to read the device state.
func WithChecker(c *Checker) SwitcherOption {
	return func(s *Switcher) { s.checker = c }
}

// Switcher drives one DUT between boot modes.
//
// A Switcher exclusively owns its DebugInterface and DUTProxy. It is not
// safe for concurrent use; run one Switcher per DUT.
type Switcher struct {
	dbg     DebugInterface
	dut     DUTProxy
	cfg     *Config
	clk     clock.Clock
	policy  RetryPolicy
	checker *Checker
	nav     *navigator

	state   SwitcherState
	history []SwitcherState
	// last is the most recently read device state. It is cleared on every
	// state transition.
	last *DeviceState
	// target is the mode of the current or last transition.
	target BootMode
}

// NewSwitcher returns a Switcher for the DUT reached through dbg and dut.
func NewSwitcher(dbg DebugInterface, dut DUTProxy, cfg *Config, opts ...SwitcherOption) (*Switcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Switcher{
		dbg:     dbg,
		dut:     dut,
		cfg:     cfg,
		clk:     clock.NewClock(),
		policy:  cfg.RetryPolicy(),
		state:   StateUnknown,
		history: []SwitcherState{StateUnknown},
		target:  BootModeRecovery,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "bad retry policy")
	}
	if s.checker == nil {
		c, err := NewChecker(dbg, dut, cfg, s.clk)
		if err != nil {
			return nil, err
		}
		s.checker = c
	}
	s.nav = newNavigator(dbg, s.clk, cfg)
	return s, nil
}

// State returns the current state of the state machine.
func (s *Switcher) State() SwitcherState { return s.state }

// History returns every state the Switcher has been in, oldest first.
func (s *Switcher) History() []SwitcherState {
	return append([]SwitcherState(nil), s.history...)
}

// LastState returns the cached device state, or nil if it was invalidated
// since the last read.
func (s *Switcher) LastState() *DeviceState { return s.last }

func (s *Switcher) setState(ctx context.Context, st SwitcherState) {
	logging.Debugf(ctx, "Switcher state %v -> %v", s.state, st)
	s.state = st
	s.history = append(s.history, st)
	s.last = nil
}

// ReadState returns the device state, reading it unless it is cached.
func (s *Switcher) ReadState(ctx context.Context) (*DeviceState, error) {
	if s.last != nil {
		return s.last, nil
	}
	st, err := s.checker.ReadState(ctx)
	if err != nil {
		return nil, err
	}
	s.last = st
	return st, nil
}

// WaitForClient waits until the DUT is reachable. It returns a
// *TimeoutError if it is not within timeout.
func (s *Switcher) WaitForClient(ctx context.Context, timeout time.Duration) error {
	err := s.waitReachable(ctx, "wait for client", true, timeout)
	s.attachTerminalState(ctx, err)
	return err
}

// WaitForClientOffline waits until the DUT is unreachable. It returns a
// *TimeoutError if it is still reachable after timeout.
func (s *Switcher) WaitForClientOffline(ctx context.Context, timeout time.Duration) error {
	err := s.waitReachable(ctx, "wait for client offline", false, timeout)
	s.attachTerminalState(ctx, err)
	return err
}

// waitReachable polls the DUT until its reachability is want.
func (s *Switcher) waitReachable(ctx context.Context, op string, want bool, timeout time.Duration) error {
	res, err := poll(ctx, s.clk, timeout, s.cfg.PollInterval.Duration(), s.cfg.PingTimeout.Duration(),
		func(ctx context.Context, timeout time.Duration) bool {
			return s.dut.IsReachable(ctx, timeout) == want
		})
	if err != nil {
		return errors.Wrapf(err, "%s interrupted after %v", op, res.elapsed)
	}
	if !res.ok {
		return &TimeoutError{Op: op, Elapsed: res.elapsed, Polls: res.polls}
	}
	logging.Debugf(ctx, "%s: done after %v (%d polls)", op, res.elapsed, res.polls)
	return nil
}

// remaining returns d, or the time left until deadline if that is shorter.
func (s *Switcher) remaining(deadline time.Time, d time.Duration) time.Duration {
	if rem := deadline.Sub(s.clk.Now()); rem < d {
		return rem
	}
	return d
}

// SetupMode brings the DUT into target. It does nothing if the DUT already
// is in target. If allowGBBForce is true, developer mode is switched by
// rewriting GBB flags instead of navigating firmware screens.
func (s *Switcher) SetupMode(ctx context.Context, target BootMode, allowGBBForce bool) error {
	return s.setupMode(ctx, target, allowGBBForce, BootModeUnknown)
}

func (s *Switcher) setupMode(ctx context.Context, target BootMode, allowGBBForce bool, hint BootMode) error {
	if target == BootModeUnknown {
		return errors.New("no target mode given")
	}
	logging.Infof(ctx, "Setting up %v mode", target)

	waitErr := s.waitReachable(ctx, "wait for client", true, s.cfg.DelayRebootToPing.Duration())
	if waitErr != nil {
		var te *TimeoutError
		if !errors.As(waitErr, &te) {
			return waitErr
		}
		logging.Infof(ctx, "DUT not reachable before setting up %v mode: %v", target, waitErr)
	}

	from := hint
	st, err := s.ReadState(ctx)
	switch {
	case err == nil:
		from = st.BootMode
	case hint != BootModeUnknown:
		logging.Infof(ctx, "Could not read state, assuming %v mode: %v", hint, err)
	case waitErr != nil:
		attachState(waitErr, TerminalState(err))
		return waitErr
	default:
		return err
	}

	if err == nil && from == target {
		// A mode read from the console means the DUT is parked at a
		// firmware screen, not running in target.
		if waitErr == nil && st.Reachable {
			logging.Infof(ctx, "DUT already in %v mode", target)
			if s.state == StateUnknown {
				s.setState(ctx, StateOnline)
				s.last = st
			}
			return nil
		}
		logging.Infof(ctx, "DUT reports %v mode but is unreachable; rebooting", target)
	}

	if isDevSwitch(from, target) {
		if allowGBBForce {
			return s.switchWithGBB(ctx, target)
		}
		if s.cfg.Capabilities().RequiresGBBForce {
			return errors.Wrapf(ErrGBBForceRequired, "cannot switch from %v to %v on %s", from, target, s.cfg.Platform)
		}
	}
	return s.RebootToMode(ctx, target, &RebootOptions{From: from})
}

// isDevSwitch reports whether going from one mode to another turns
// developer mode on or off.
func isDevSwitch(from, to BootMode) bool {
	switch to {
	case BootModeDeveloper:
		return from != BootModeDeveloper
	case BootModeNormal:
		return from == BootModeDeveloper
	}
	return false
}

// Transition applies req and classifies the result.
func (s *Switcher) Transition(ctx context.Context, req TransitionRequest) Outcome {
	if req.USBState != USBMuxUnset {
		if err := s.dbg.SetUSBMux(ctx, req.USBState); err != nil {
			return Classify(newHardwareError(err, "setting USB mux to %v", req.USBState))
		}
	}
	return Classify(s.setupMode(ctx, req.To, req.AllowGBBForce, req.From))
}

// RebootToMode resets the DUT into mode to, passes any firmware screens on
// the way and verifies the mode it booted in. opts may be nil.
func (s *Switcher) RebootToMode(ctx context.Context, to BootMode, opts *RebootOptions) error {
	if opts == nil {
		opts = &RebootOptions{}
	}
	p, err := s.planFor(to, opts.From)
	if err != nil {
		return err
	}
	if opts.USBState != USBMuxUnset {
		p.usb = opts.USBState
	}
	return s.execute(ctx, p, !opts.SkipSync)
}

// execute runs p under the retry policy.
func (s *Switcher) execute(ctx context.Context, p *rebootPlan, sync bool) error {
	s.target = p.to
	if sync {
		s.syncFS(ctx)
	}
	err := retry(ctx, s.clk, s.policy, func(ctx context.Context, deadline time.Time) error {
		return s.attempt(ctx, p, deadline)
	})
	if err == nil {
		return nil
	}
	if s.state != StateOnline {
		s.setState(ctx, StateFailed)
	}
	s.attachTerminalState(ctx, err)
	return err
}

// syncFS flushes the DUT's file systems. Failures are only logged.
func (s *Switcher) syncFS(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if _, err := s.dut.Run(sctx, "sync"); err != nil {
		logging.Infof(ctx, "Failed to sync before reboot (ignored): %v", err)
	}
}

// attempt runs one reset-and-wait sequence of p. Every wait ends by
// deadline.
func (s *Switcher) attempt(ctx context.Context, p *rebootPlan, deadline time.Time) error {
	if s.state != StateRebooting {
		s.setState(ctx, StateRebooting)
	}
	s.last = nil
	if p.usb != USBMuxUnset {
		if err := s.dbg.SetUSBMux(ctx, p.usb); err != nil {
			return newHardwareError(err, "setting USB mux to %v", p.usb)
		}
		if err := sleep(ctx, s.clk, s.cfg.USBPlug.Duration()); err != nil {
			return err
		}
	}

	logging.Infof(ctx, "Rebooting to %v mode with %s", p.to, p.resetName)
	if err := p.reset(ctx); err != nil {
		return newHardwareError(err, "%s failed", p.resetName)
	}
	if err := s.waitReachable(ctx, "wait for client offline", false,
		s.remaining(deadline, s.cfg.ShutdownTimeout.Duration())); err != nil {
		return err
	}

	online := false
	for _, sc := range p.screens {
		var err error
		if online, err = s.waitScreen(ctx, sc.name, deadline); err != nil {
			return err
		}
		if online {
			logging.Infof(ctx, "DUT came up before the %s screen", sc.name)
			break
		}
		s.setState(ctx, StateAwaitingBypass)
		logging.Infof(ctx, "Passing the %s screen", sc.name)
		if err := sc.action(ctx); err != nil {
			return newHardwareError(err, "passing the %s screen", sc.name)
		}
		s.setState(ctx, StateRebooting)
	}

	if !online {
		if p.bypass != nil {
			var err error
			if online, err = s.waitScreen(ctx, p.bypass.name, deadline); err != nil {
				return err
			}
			if !online {
				if err := s.bypassLoop(ctx, p.bypass, deadline); err != nil {
					return err
				}
			}
		} else if err := s.waitReachable(ctx, "wait for client", true,
			s.remaining(deadline, s.cfg.DelayRebootToPing.Duration())); err != nil {
			return err
		}
	}
	s.setState(ctx, StateOnline)
	return s.verify(ctx, p.to)
}

// waitScreen waits for the firmware screen sub-timeout, returning true if
// the DUT came up meanwhile. A *TimeoutError is returned if the attempt's
// deadline passed.
func (s *Switcher) waitScreen(ctx context.Context, name string, deadline time.Time) (bool, error) {
	err := s.waitReachable(ctx, "wait for "+name+" screen", true,
		s.remaining(deadline, s.cfg.FirmwareScreen.Duration()))
	if err == nil {
		return true, nil
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		return false, err
	}
	if !s.clk.Now().Before(deadline) {
		return false, err
	}
	return false, nil
}

// bypassLoop performs sc's bypass action and waits for the DUT, repeating
// the action BypassRetries more times. A *HardwareError is returned if the
// DUT stays unreachable, also when deadline cut the retries short, so the
// bypass is never repeated by an outer retry.
func (s *Switcher) bypassLoop(ctx context.Context, sc *screen, deadline time.Time) error {
	attempts := 1 + s.cfg.BypassRetries
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if s.state != StateAwaitingBypass {
			s.setState(ctx, StateAwaitingBypass)
		}
		logging.Infof(ctx, "Bypassing the %s screen (%d/%d)", sc.name, i, attempts)
		if err := sc.action(ctx); err != nil {
			return newHardwareError(err, "bypassing the %s screen", sc.name)
		}
		s.setState(ctx, StateRebooting)
		err := s.waitReachable(ctx, "wait for client", true,
			s.remaining(deadline, s.cfg.DelayRebootToPing.Duration()))
		if err == nil {
			return nil
		}
		var te *TimeoutError
		if !errors.As(err, &te) {
			return err
		}
		lastErr = err
		if i < attempts && !s.clk.Now().Before(deadline) {
			return newHardwareError(lastErr, "DUT still unreachable after %d of %d attempts to bypass the %s screen; attempt time is up", i, attempts, sc.name)
		}
	}
	return newHardwareError(lastErr, "DUT still unreachable after %d attempts to bypass the %s screen", attempts, sc.name)
}

// BypassRecMode passes the firmware screen the DUT is parked at, for the
// mode of the current or last transition (recovery if none), and waits
// for the DUT to come up. The bypass is repeated BypassRetries times
// before a *HardwareError is returned.
func (s *Switcher) BypassRecMode(ctx context.Context) error {
	sc, err := s.bypassScreen(s.target)
	if err != nil {
		return err
	}
	err = s.bypassLoop(ctx, sc, s.clk.Now().Add(s.policy.TimeoutPerAttempt))
	if err != nil {
		s.setState(ctx, StateFailed)
		s.attachTerminalState(ctx, err)
		return err
	}
	s.setState(ctx, StateOnline)
	return nil
}

func (s *Switcher) bypassRecovery(ctx context.Context) error {
	return s.dbg.SetUSBMux(ctx, USBMuxDUT)
}

// verify checks that the DUT booted in mode want.
func (s *Switcher) verify(ctx context.Context, want BootMode) error {
	st, err := s.ReadState(ctx)
	if err != nil {
		return err
	}
	exp := ExpectMode(want)
	if !CheckState(st, exp) {
		return &UnexpectedStateError{Actual: st, Expected: exp}
	}
	logging.Infof(ctx, "DUT is in %v mode", st.BootMode)
	return nil
}

// attachTerminalState records the device state in a failure that carries
// one. The state is read at most once.
func (s *Switcher) attachTerminalState(ctx context.Context, err error) {
	if err == nil || TerminalState(err) != nil {
		return
	}
	var te *TimeoutError
	var he *HardwareError
	if !errors.As(err, &te) && !errors.As(err, &he) {
		return
	}
	st, rerr := s.checker.ReadState(ctx)
	if rerr != nil {
		logging.Debugf(ctx, "Terminal state unavailable: %v", rerr)
		return
	}
	attachState(err, st)
}
