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

// navigator drives firmware screens. The key sequences depend on the
// platform's capabilities only.
type navigator struct {
	dbg  DebugInterface
	clk  clock.Clock
	caps Capabilities

	keypressDelay time.Duration
	shortPress    time.Duration
	confirmScreen time.Duration
	recButton     bool
	powerButton   bool
}

func newNavigator(dbg DebugInterface, clk clock.Clock, cfg *Config) *navigator {
	return &navigator{
		dbg:           dbg,
		clk:           clk,
		caps:          cfg.Capabilities(),
		keypressDelay: cfg.KeypressDelay.Duration(),
		shortPress:    cfg.HoldPowerButton.Duration(),
		confirmScreen: cfg.ConfirmScreen.Duration(),
		recButton:     cfg.RecButtonDevSwitch,
		powerButton:   cfg.PowerButtonDevSwitch,
	}
}

// step is one navigation action followed by the keypress delay.
type step func(ctx context.Context) error

func (n *navigator) run(ctx context.Context, steps ...step) error {
	for i, s := range steps {
		if i > 0 {
			if err := sleep(ctx, n.clk, n.keypressDelay); err != nil {
				return err
			}
		}
		if err := s(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *navigator) keys(keys ...Key) step {
	return func(ctx context.Context) error {
		return n.dbg.SendKeys(ctx, keys...)
	}
}

func (n *navigator) power() step {
	return func(ctx context.Context) error {
		return n.dbg.PressPowerButton(ctx, n.shortPress)
	}
}

func (n *navigator) up() step {
	if n.caps.HasDetachableButtons {
		return n.keys(KeyVolumeUp)
	}
	return n.keys(KeyUp)
}

func (n *navigator) down() step {
	if n.caps.HasDetachableButtons {
		return n.keys(KeyVolumeDown)
	}
	return n.keys(KeyDown)
}

func (n *navigator) selectItem() step {
	if n.caps.HasDetachableButtons {
		return n.power()
	}
	return n.keys(KeyEnter)
}

func repeat(k int, s step) []step {
	steps := make([]step, k)
	for i := range steps {
		steps[i] = s
	}
	return steps
}

func concat(groups ...[]step) []step {
	var all []step
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

// confirmToDev confirms the to-dev screen.
func (n *navigator) confirmToDev() step {
	switch {
	case n.recButton:
		return n.keys(KeyRecovery)
	case n.powerButton:
		return n.power()
	}
	return n.selectItem()
}

// recToDev requests developer mode from the recovery screen.
func (n *navigator) recToDev(ctx context.Context) error {
	logging.Info(ctx, "Triggering to-dev transition")
	switch {
	case n.caps.HasMenuUI:
		// Recovery screen items: language, phone, external disk,
		// diagnostics, advanced options, power off. The default selection
		// is unknown, so go to the last item first.
		return n.run(ctx, concat(
			repeat(5, n.down()),
			[]step{n.up(), n.selectItem(), n.selectItem(), n.confirmToDev()},
		)...)
	case n.caps.HasDetachableButtons:
		return n.run(ctx, n.keys(KeyVolumeUpDown), n.power())
	}
	confirm := n.keys(KeyEnter)
	if n.recButton || n.powerButton {
		confirm = n.confirmToDev()
	}
	// Ctrl+D brings up the to-dev confirmation screen, which ignores keys
	// until it has been drawn.
	return n.run(ctx, n.keys(KeyCtrlD), n.wait(n.confirmScreen), confirm)
}

// wait is a step that only sleeps.
func (n *navigator) wait(d time.Duration) step {
	return func(ctx context.Context) error {
		return sleep(ctx, n.clk, d)
	}
}

// devBootInternal boots from the internal disk on the developer screen.
func (n *navigator) devBootInternal(ctx context.Context) error {
	logging.Info(ctx, "Booting from internal disk on the developer screen")
	switch {
	case n.caps.HasMenuUI:
		return n.run(ctx, concat(
			repeat(5, n.up()),
			repeat(2, n.down()),
			[]step{n.selectItem()},
		)...)
	case n.caps.HasDetachableButtons:
		return n.run(ctx, concat(
			repeat(3, n.up()),
			[]step{n.selectItem(), n.selectItem()},
		)...)
	}
	return n.run(ctx, n.keys(KeyCtrlD))
}

// devToNormal requests normal mode from the developer screen.
func (n *navigator) devToNormal(ctx context.Context) error {
	logging.Info(ctx, "Triggering to-norm transition")
	switch {
	case n.caps.HasMenuUI:
		return n.run(ctx, concat(
			repeat(5, n.up()),
			[]step{n.down(), n.selectItem(), n.selectItem()},
		)...)
	case n.caps.HasDetachableButtons:
		return n.run(ctx, n.up(), n.selectItem(), n.selectItem())
	}
	return n.run(ctx, n.keys(KeyEnter), n.keys(KeyEnter))
}

// bootMiniOS selects MiniOS on the recovery screen.
func (n *navigator) bootMiniOS(ctx context.Context) error {
	if !n.caps.HasMenuUI {
		return errors.New("MiniOS can only be selected from the menu UI")
	}
	logging.Info(ctx, "Selecting MiniOS on the recovery screen")
	return n.run(ctx, concat(
		repeat(5, n.up()),
		[]step{n.down(), n.selectItem()},
	)...)
}
