// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCrossystem(t *testing.T) {
	const out = `arch                    = x86_64                         # Platform architecture
mainfw_act              = B                              # Active main firmware
mainfw_type             = developer                      # Active main firmware type
recovery_reason         = 0                              # Recovery mode reason for current boot
ro_fwid                 = Google_Foo.1234.0.0            # Read-only firmware ID
`
	m, err := parseCrossystem(out)
	if err != nil {
		t.Fatal("parseCrossystem failed: ", err)
	}
	st, err := stateFromCrossystem(m)
	if err != nil {
		t.Fatal("stateFromCrossystem failed: ", err)
	}
	want := &DeviceState{BootMode: BootModeDeveloper, FirmwareSlot: SlotB}
	if diff := cmp.Diff(st, want); diff != "" {
		t.Errorf("State mismatch (-got +want):\n%s", diff)
	}
}

func TestParseCrossystemErrors(t *testing.T) {
	for name, out := range map[string]string{
		"bad_line":  "mainfw_type normal\n",
		"duplicate": "mainfw_act = A # x\nmainfw_act = B # x\n",
	} {
		if _, err := parseCrossystem(out); err == nil {
			t.Errorf("parseCrossystem(%s) succeeded; want error", name)
		}
	}
}

func TestStateFromCrossystemErrors(t *testing.T) {
	for name, m := range map[string]map[string]string{
		"no_type":    {"mainfw_act": "A"},
		"bad_reason": {"mainfw_type": "recovery", "recovery_reason": "x"},
	} {
		if _, err := stateFromCrossystem(m); err == nil {
			t.Errorf("stateFromCrossystem(%s) succeeded; want error", name)
		}
	}
}

func TestRecoveryReasonName(t *testing.T) {
	for code, want := range map[int]string{
		RecoveryROManual: "2 (RO_MANUAL)",
		17:               "17 (RW_DEV_MISMATCH)",
		250:              "250",
	} {
		if got := RecoveryReasonName(code); got != want {
			t.Errorf("RecoveryReasonName(%d) = %q; want %q", code, got, want)
		}
	}
}

func TestParseGBBFlags(t *testing.T) {
	got, err := parseGBBFlags("flags: 0x00000039\n")
	if err != nil {
		t.Fatal("parseGBBFlags failed: ", err)
	}
	if got != 0x39 {
		t.Errorf("parseGBBFlags = %#x; want 0x39", got)
	}
	if _, err := parseGBBFlags("futility: error"); err == nil {
		t.Error("parseGBBFlags succeeded on bad output")
	}
}
