// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"sort"

	"go.chromium.org/fwmode/errors"
)

// ControlNames maps the actions of the debug interface to servod control
// names. Names differ between servo and board revisions, so they can be
// overridden from the platform config.
type ControlNames struct {
	PowerState     string
	WarmReset      string
	LidOpen        string
	USBKeyMux      string
	USBKeyPower    string
	PowerKey       string
	RecMode        string
	CtrlD          string
	CtrlU          string
	CtrlR          string
	Enter          string
	ArrowUp        string
	ArrowDown      string
	VolumeUp       string
	VolumeDown     string
	VolumeUpDown   string
	ConsoleCapture string
	ConsoleStream  string
}

// DefaultControlNames returns the control names of a servo v4 setup.
func DefaultControlNames() ControlNames {
	return ControlNames{
		PowerState:     "power_state",
		WarmReset:      "warm_reset",
		LidOpen:        "lid_open",
		USBKeyMux:      "image_usbkey_direction",
		USBKeyPower:    "image_usbkey_pwr",
		PowerKey:       "power_key",
		RecMode:        "rec_mode",
		CtrlD:          "ctrl_d",
		CtrlU:          "ctrl_u",
		CtrlR:          "ctrl_r",
		Enter:          "enter_key",
		ArrowUp:        "arrow_up",
		ArrowDown:      "arrow_down",
		VolumeUp:       "volume_up_hold",
		VolumeDown:     "volume_down_hold",
		VolumeUpDown:   "volume_up_down_hold",
		ConsoleCapture: "cpu_uart_capture",
		ConsoleStream:  "cpu_uart_stream",
	}
}

// fields indexes n by the keys used in config files.
func (n *ControlNames) fields() map[string]*string {
	return map[string]*string{
		"power_state":            &n.PowerState,
		"warm_reset":             &n.WarmReset,
		"lid_open":               &n.LidOpen,
		"image_usbkey_direction": &n.USBKeyMux,
		"image_usbkey_pwr":       &n.USBKeyPower,
		"power_key":              &n.PowerKey,
		"rec_mode":               &n.RecMode,
		"ctrl_d":                 &n.CtrlD,
		"ctrl_u":                 &n.CtrlU,
		"ctrl_r":                 &n.CtrlR,
		"enter_key":              &n.Enter,
		"arrow_up":               &n.ArrowUp,
		"arrow_down":             &n.ArrowDown,
		"volume_up":              &n.VolumeUp,
		"volume_down":            &n.VolumeDown,
		"volume_up_down":         &n.VolumeUpDown,
		"console_capture":        &n.ConsoleCapture,
		"console_stream":         &n.ConsoleStream,
	}
}

// Override replaces names from a config map keyed by the default control
// names, e.g. {"lid_open": "lid_open_v2"}. Unknown keys are an error so a
// typo in a config file does not go unnoticed.
func (n *ControlNames) Override(m map[string]string) error {
	fields := n.fields()
	var unknown []string
	for k, v := range m {
		p, ok := fields[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if v == "" {
			return errors.Errorf("empty servo control name for %q", k)
		}
		*p = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.Errorf("unknown servo control keys %q", unknown)
	}
	return nil
}
