// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package firmware drives a DUT between firmware boot modes and verifies
// where it landed.
//
// A Switcher owns one DUT. It sequences hardware actions through a
// DebugInterface (usually servo), polls the DUT's reachability through a
// DUTProxy, and checks the resulting state with a Checker. Boards differ in
// how their firmware screens are navigated; the differences are described
// by Capabilities in the platform Config rather than by per-board types.
package firmware

import (
	"fmt"
	"strings"

	"go.chromium.org/fwmode/errors"
)

// BootMode is the firmware-level mode the DUT booted in.
type BootMode int

// Boot modes. BootModeUnknown is used when a mode was not given or could
// not be determined.
const (
	BootModeUnknown BootMode = iota
	BootModeNormal
	BootModeDeveloper
	BootModeRecovery
	BootModeMiniOS
)

var bootModeNames = map[BootMode]string{
	BootModeUnknown:   "unknown",
	BootModeNormal:    "normal",
	BootModeDeveloper: "developer",
	BootModeRecovery:  "recovery",
	BootModeMiniOS:    "minios",
}

func (m BootMode) String() string {
	if s, ok := bootModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("BootMode(%d)", int(m))
}

// ParseBootMode parses a mode name as printed by String. "dev" and "rec"
// are accepted as short forms.
func ParseBootMode(s string) (BootMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return BootModeNormal, nil
	case "developer", "dev":
		return BootModeDeveloper, nil
	case "recovery", "rec":
		return BootModeRecovery, nil
	case "minios":
		return BootModeMiniOS, nil
	}
	return BootModeUnknown, errors.Errorf("unknown boot mode %q", s)
}

// FirmwareSlot is the RW firmware copy the DUT booted from.
type FirmwareSlot int

// Firmware slots.
const (
	SlotUnknown FirmwareSlot = iota
	SlotA
	SlotB
)

func (s FirmwareSlot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	case SlotUnknown:
		return "unknown"
	}
	return fmt.Sprintf("FirmwareSlot(%d)", int(s))
}

// parseSlot parses crossystem's mainfw_act. The RO copy booted in recovery
// is reported as unknown.
func parseSlot(s string) FirmwareSlot {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return SlotA
	case "B":
		return SlotB
	}
	return SlotUnknown
}

// USBMuxState is where the servo's USB stick is routed.
type USBMuxState int

// USB mux states. USBMuxUnset leaves the mux alone.
const (
	USBMuxUnset USBMuxState = iota
	USBMuxOff
	USBMuxHost
	USBMuxDUT
)

func (u USBMuxState) String() string {
	switch u {
	case USBMuxUnset:
		return "unset"
	case USBMuxOff:
		return "off"
	case USBMuxHost:
		return "host"
	case USBMuxDUT:
		return "dut"
	}
	return fmt.Sprintf("USBMuxState(%d)", int(u))
}

// ParseUSBMuxState parses "off", "host" or "dut". An empty string is
// USBMuxUnset.
func ParseUSBMuxState(s string) (USBMuxState, error) {
	switch strings.ToLower(s) {
	case "":
		return USBMuxUnset, nil
	case "off":
		return USBMuxOff, nil
	case "host":
		return USBMuxHost, nil
	case "dut":
		return USBMuxDUT, nil
	}
	return USBMuxUnset, errors.Errorf("unknown USB mux state %q", s)
}

// Key is a key or button press sent to the DUT by the debug interface.
type Key string

// Keys used to navigate firmware screens.
const (
	KeyCtrlD        Key = "ctrl_d"
	KeyCtrlU        Key = "ctrl_u"
	KeyCtrlR        Key = "ctrl_r"
	KeyEnter        Key = "enter"
	KeyUp           Key = "up"
	KeyDown         Key = "down"
	KeyVolumeUp     Key = "volume_up"
	KeyVolumeDown   Key = "volume_down"
	KeyVolumeUpDown Key = "volume_up_down"
	// KeyRecovery taps the recovery button.
	KeyRecovery Key = "recovery"
)

// SwitcherState is the state of a Switcher's transition state machine.
type SwitcherState int

// Switcher states.
const (
	StateUnknown SwitcherState = iota
	StateRebooting
	StateAwaitingBypass
	StateOnline
	StateFailed
)

func (s SwitcherState) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateRebooting:
		return "REBOOTING"
	case StateAwaitingBypass:
		return "AWAITING_BYPASS"
	case StateOnline:
		return "ONLINE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("SwitcherState(%d)", int(s))
}
