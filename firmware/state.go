// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"fmt"
	"strings"
)

// DeviceState is a snapshot of the DUT's boot-relevant state. A new one is
// read for every check.
type DeviceState struct {
	BootMode       BootMode
	FirmwareSlot   FirmwareSlot
	RecoveryReason int
	Reachable      bool
}

func (s *DeviceState) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("{mode=%v slot=%v recovery_reason=%s reachable=%t}",
		s.BootMode, s.FirmwareSlot, RecoveryReasonName(s.RecoveryReason), s.Reachable)
}

// Expectation is a partial DeviceState. Each field lists the acceptable
// values; an empty field matches anything.
type Expectation struct {
	BootModes       []BootMode
	FirmwareSlots   []FirmwareSlot
	RecoveryReasons []int
	Reachable       []bool
}

// ExpectMode returns an Expectation on the boot mode only.
func ExpectMode(modes ...BootMode) Expectation {
	return Expectation{BootModes: modes}
}

func (e Expectation) String() string {
	var parts []string
	if len(e.BootModes) > 0 {
		parts = append(parts, "mode="+setString(e.BootModes))
	}
	if len(e.FirmwareSlots) > 0 {
		parts = append(parts, "slot="+setString(e.FirmwareSlots))
	}
	if len(e.RecoveryReasons) > 0 {
		var names []string
		for _, r := range e.RecoveryReasons {
			names = append(names, RecoveryReasonName(r))
		}
		parts = append(parts, "recovery_reason="+setString(names))
	}
	if len(e.Reachable) > 0 {
		parts = append(parts, "reachable="+setString(e.Reachable))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Mismatches returns a description of every field of actual that e does not
// accept. It returns nil if actual matches.
func (e Expectation) Mismatches(actual *DeviceState) []string {
	if actual == nil {
		if e.empty() {
			return nil
		}
		return []string{"no device state"}
	}
	var diffs []string
	if !contains(e.BootModes, actual.BootMode) {
		diffs = append(diffs, fmt.Sprintf("mode: got %v, want %s", actual.BootMode, setString(e.BootModes)))
	}
	if !contains(e.FirmwareSlots, actual.FirmwareSlot) {
		diffs = append(diffs, fmt.Sprintf("slot: got %v, want %s", actual.FirmwareSlot, setString(e.FirmwareSlots)))
	}
	if !contains(e.RecoveryReasons, actual.RecoveryReason) {
		diffs = append(diffs, fmt.Sprintf("recovery_reason: got %d, want %s", actual.RecoveryReason, setString(e.RecoveryReasons)))
	}
	if !contains(e.Reachable, actual.Reachable) {
		diffs = append(diffs, fmt.Sprintf("reachable: got %t, want %s", actual.Reachable, setString(e.Reachable)))
	}
	return diffs
}

func (e Expectation) empty() bool {
	return len(e.BootModes) == 0 && len(e.FirmwareSlots) == 0 &&
		len(e.RecoveryReasons) == 0 && len(e.Reachable) == 0
}

// CheckState reports whether actual satisfies want. Fields left empty in
// want are ignored. It does no I/O.
func CheckState(actual *DeviceState, want Expectation) bool {
	return len(want.Mismatches(actual)) == 0
}

func contains[T comparable](set []T, v T) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func setString[T any](set []T) string {
	if len(set) == 1 {
		return fmt.Sprint(set[0])
	}
	var strs []string
	for _, v := range set {
		strs = append(strs, fmt.Sprint(v))
	}
	return "{" + strings.Join(strs, ",") + "}"
}
