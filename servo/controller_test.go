// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/testutil"
)

func newTestController(t *testing.T) (*Controller, *fakeServod) {
	f := newFakeServod(t)
	clk := testutil.NewStepClock(time.Unix(0, 0))
	return NewController(f.servo(t), DefaultControlNames(), clk), f
}

func TestControllerSendKeys(t *testing.T) {
	c, f := newTestController(t)
	keys := []firmware.Key{
		firmware.KeyCtrlD, firmware.KeyEnter, firmware.KeyDown, firmware.KeyUp,
		firmware.KeyVolumeUpDown, firmware.KeyRecovery,
	}
	if err := c.SendKeys(context.Background(), keys...); err != nil {
		t.Fatal("SendKeys failed: ", err)
	}
	want := []string{
		"ctrl_d=tab",
		"enter_key=tab",
		"arrow_down=tab",
		"arrow_up=tab",
		"volume_up_down_hold=100",
		"rec_mode=on",
		"rec_mode=off",
	}
	if diff := cmp.Diff(f.setCalls(), want); diff != "" {
		t.Errorf("Set calls mismatch (-got +want):\n%s", diff)
	}
}

func TestControllerSendKeysUnsupported(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.SendKeys(context.Background(), firmware.Key("f12")); err == nil {
		t.Error("SendKeys(f12) succeeded; want error")
	}
}

func TestControllerRenamedControls(t *testing.T) {
	f := newFakeServod(t)
	names := DefaultControlNames()
	if err := names.Override(map[string]string{"lid_open": "lid_open_v2"}); err != nil {
		t.Fatal(err)
	}
	c := NewController(f.servo(t), names, testutil.NewStepClock(time.Unix(0, 0)))
	if err := c.SetLid(context.Background(), true); err != nil {
		t.Fatal("SetLid failed: ", err)
	}
	if diff := cmp.Diff(f.setCalls(), []string{"lid_open_v2=yes"}); diff != "" {
		t.Errorf("Set calls mismatch (-got +want):\n%s", diff)
	}
}

func TestControllerActions(t *testing.T) {
	for _, tc := range []struct {
		name string
		act  func(ctx context.Context, c *Controller) error
		want []string
	}{
		{"ColdReset", func(ctx context.Context, c *Controller) error { return c.ColdReset(ctx, false) },
			[]string{"power_state=reset"}},
		{"ColdResetRecovery", func(ctx context.Context, c *Controller) error { return c.ColdReset(ctx, true) },
			[]string{"power_state=rec"}},
		{"WarmReset", func(ctx context.Context, c *Controller) error { return c.WarmReset(ctx) },
			[]string{"warm_reset=on", "warm_reset=off"}},
		{"PowerButton", func(ctx context.Context, c *Controller) error {
			return c.PressPowerButton(ctx, 200*time.Millisecond)
		}, []string{"power_key=0.2"}},
		{"LidClose", func(ctx context.Context, c *Controller) error { return c.SetLid(ctx, false) },
			[]string{"lid_open=no"}},
		{"USBHost", func(ctx context.Context, c *Controller) error { return c.SetUSBMux(ctx, firmware.USBMuxHost) },
			[]string{"image_usbkey_direction=servo_sees_usbkey", "image_usbkey_pwr=on"}},
		{"USBDUT", func(ctx context.Context, c *Controller) error { return c.SetUSBMux(ctx, firmware.USBMuxDUT) },
			[]string{"image_usbkey_direction=dut_sees_usbkey", "image_usbkey_pwr=on"}},
		{"USBOff", func(ctx context.Context, c *Controller) error { return c.SetUSBMux(ctx, firmware.USBMuxOff) },
			[]string{"image_usbkey_pwr=off"}},
		{"USBUnset", func(ctx context.Context, c *Controller) error { return c.SetUSBMux(ctx, firmware.USBMuxUnset) },
			nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, f := newTestController(t)
			if err := tc.act(context.Background(), c); err != nil {
				t.Fatal("Action failed: ", err)
			}
			if diff := cmp.Diff(f.setCalls(), tc.want); diff != "" {
				t.Errorf("Set calls mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestControllerReadConsoleLine(t *testing.T) {
	c, f := newTestController(t)
	f.streams["cpu_uart_stream"] = []string{
		`'coreboot starting\r\nmainfw_t'`,
		``,
		`'ype: recovery\r\nrecovery_reason: 2\r\n'`,
	}
	ctx := context.Background()

	var got []string
	for {
		line, err := c.ReadConsoleLine(ctx, time.Second)
		if errors.Is(err, firmware.ErrConsoleIdle) {
			break
		}
		if err != nil {
			t.Fatal("ReadConsoleLine failed: ", err)
		}
		got = append(got, line)
	}
	want := []string{"coreboot starting", "mainfw_type: recovery", "recovery_reason: 2"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Lines mismatch (-got +want):\n%s", diff)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatal("Close failed: ", err)
	}
	if diff := cmp.Diff(f.setCalls(), []string{"cpu_uart_capture=on", "cpu_uart_capture=off"}); diff != "" {
		t.Errorf("Set calls mismatch (-got +want):\n%s", diff)
	}
}

func TestUnquoteStream(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{`''`, ""},
		{`'a\r\nb'`, "a\r\nb"},
		{`'it\'s'`, "it's"},
		{`'back\\slash'`, `back\slash`},
		{"raw text", "raw text"},
	} {
		if got := unquoteStream(tc.in); got != tc.want {
			t.Errorf("unquoteStream(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
