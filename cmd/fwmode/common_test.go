// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/testutil"
)

func TestPairTargets(t *testing.T) {
	for _, tc := range []struct {
		name    string
		duts    []string
		servos  string
		want    []target
		wantErr bool
	}{
		{"LocalServo", []string{"dut1"}, "", []target{{"dut1", ""}}, false},
		{"OneEach", []string{"dut1", "dut2"}, "lab1:9901,lab1:9902", []target{{"dut1", "lab1:9901"}, {"dut2", "lab1:9902"}}, false},
		{"Docker", []string{"dut1"}, "host2-docker_servod:9999", []target{{"dut1", "host2-docker_servod:9999"}}, false},
		{"NoTarget", nil, "", nil, true},
		{"MissingServo", []string{"dut1", "dut2"}, "lab1:9901", nil, true},
		{"MultiWithoutServo", []string{"dut1", "dut2"}, "", nil, true},
		{"Duplicate", []string{"dut1", "dut1"}, "a,b", nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pairTargets(tc.duts, tc.servos)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("pairTargets(%q, %q) succeeded; want error", tc.duts, tc.servos)
				}
				return
			}
			if err != nil {
				t.Fatalf("pairTargets(%q, %q) failed: %v", tc.duts, tc.servos, err)
			}
			if diff := cmp.Diff(got, tc.want, cmp.AllowUnexported(target{})); diff != "" {
				t.Errorf("pairTargets mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestParseModeArg(t *testing.T) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	if err := fs.Parse([]string{"dev", "dut1", "dut2"}); err != nil {
		t.Fatal(err)
	}
	m, duts, err := parseModeArg(fs)
	if err != nil {
		t.Fatal("parseModeArg failed: ", err)
	}
	if m != firmware.BootModeDeveloper {
		t.Errorf("mode = %v; want developer", m)
	}
	if diff := cmp.Diff(duts, []string{"dut1", "dut2"}); diff != "" {
		t.Errorf("targets mismatch (-got +want):\n%s", diff)
	}

	for _, args := range [][]string{{"dev"}, {"sideways", "dut1"}} {
		fs := flag.NewFlagSet("", flag.ContinueOnError)
		fs.Parse(args)
		if _, _, err := parseModeArg(fs); err == nil {
			t.Errorf("parseModeArg(%q) succeeded; want error", args)
		}
	}
}

func TestParseExpectation(t *testing.T) {
	want, err := parseExpectation("normal, dev")
	if err != nil {
		t.Fatal("parseExpectation failed: ", err)
	}
	if !firmware.CheckState(&firmware.DeviceState{BootMode: firmware.BootModeDeveloper}, want) {
		t.Errorf("developer state does not match %v", want)
	}
	if firmware.CheckState(&firmware.DeviceState{BootMode: firmware.BootModeRecovery}, want) {
		t.Errorf("recovery state matches %v", want)
	}
	if _, err := parseExpectation("normal,bogus"); err == nil {
		t.Error("parseExpectation(normal,bogus) succeeded; want error")
	}
}

func TestLoadConfig(t *testing.T) {
	cf := commonFlags{platform: "octopus"}
	cfg, err := cf.loadConfig()
	if err != nil {
		t.Fatal("loadConfig failed: ", err)
	}
	if cfg.Platform != "octopus" {
		t.Errorf("Platform = %q; want octopus", cfg.Platform)
	}

	dir := testutil.TempDir(t)
	if err := testutil.WriteFiles(dir, map[string]string{
		"DEFAULTS.json": `{"platform": null, "mode_switcher_type": "keyboard_dev_switcher"}`,
		"octopus.json":  `{"platform": "octopus", "mode_switcher_type": "menu_switcher", "firmware_screen": 15}`,
	}); err != nil {
		t.Fatal(err)
	}
	cf = commonFlags{configDir: dir, platform: "octopus"}
	if cfg, err = cf.loadConfig(); err != nil {
		t.Fatal("loadConfig failed: ", err)
	}
	if got := cfg.FirmwareScreen.Duration(); got != 15*time.Second {
		t.Errorf("FirmwareScreen = %v; want 15s", got)
	}
	if !cfg.Capabilities().HasMenuUI {
		t.Error("HasMenuUI = false; want true")
	}

	cf = commonFlags{configDir: filepath.Join(dir, "missing")}
	if _, err := cf.loadConfig(); err == nil {
		t.Error("loadConfig without -platform succeeded; want error")
	}
}

func TestDescribeError(t *testing.T) {
	st := &firmware.DeviceState{BootMode: firmware.BootModeNormal, Reachable: true}
	err := errors.Wrap(&firmware.UnexpectedStateError{
		Actual:   st,
		Expected: firmware.ExpectMode(firmware.BootModeRecovery),
	}, "setup failed")
	got := describeError(err)
	if want := "UnexpectedState: "; len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("describeError() = %q; want prefix %q", got, want)
	}
}
