// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dut

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/fwmode/firmware"
	"go.chromium.org/fwmode/ssh"
)

var _ firmware.DUTProxy = (*DUT)(nil)

type fakeHost struct {
	pingErr error
	outputs map[string]string
	runErr  error
	cmds    []string
	closed  bool
}

func (h *fakeHost) Ping(ctx context.Context, timeout time.Duration) error { return h.pingErr }

func (h *fakeHost) Output(ctx context.Context, cmd string) ([]byte, error) {
	h.cmds = append(h.cmds, cmd)
	if h.runErr != nil {
		return nil, h.runErr
	}
	return []byte(h.outputs[cmd]), nil
}

func (h *fakeHost) Close(ctx context.Context) error {
	h.closed = true
	return nil
}

func newTestDUT(t *testing.T, hosts ...*fakeHost) (*DUT, *int) {
	t.Helper()
	d, err := New("dut1", "", "", "")
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	dials := 0
	d.dial = func(ctx context.Context, o *ssh.Options) (remoteHost, error) {
		if dials >= len(hosts) {
			dials++
			return nil, errors.New("connection refused")
		}
		h := hosts[dials]
		dials++
		return h, nil
	}
	return d, &dials
}

func TestIsReachable(t *testing.T) {
	ctx := context.Background()
	h := &fakeHost{}
	d, dials := newTestDUT(t, h)

	if !d.IsReachable(ctx, time.Second) {
		t.Fatal("IsReachable = false with a working host")
	}
	if !d.IsReachable(ctx, time.Second) {
		t.Fatal("IsReachable = false on second check")
	}
	if *dials != 1 {
		t.Errorf("Dialed %d times; want 1 since the connection stayed alive", *dials)
	}

	h.pingErr = errors.New("EOF")
	if d.IsReachable(ctx, time.Second) {
		t.Error("IsReachable = true after ping failure and refused redial")
	}
	if !h.closed {
		t.Error("Stale connection was not closed")
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	h := &fakeHost{outputs: map[string]string{"crossystem mainfw_type": "normal"}}
	d, _ := newTestDUT(t, h)

	out, err := d.Run(ctx, "crossystem", "mainfw_type")
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	if out != "normal" {
		t.Errorf("Run = %q; want %q", out, "normal")
	}
	if _, err := d.Run(ctx, "sh", "-c", "echo a b"); err != nil {
		t.Fatal("Run failed: ", err)
	}
	want := []string{"crossystem mainfw_type", "sh -c 'echo a b'"}
	if diff := cmp.Diff(h.cmds, want); diff != "" {
		t.Errorf("Commands mismatch (-got +want):\n%s", diff)
	}
}

func TestRunDropsBrokenConnection(t *testing.T) {
	ctx := context.Background()
	broken := &fakeHost{runErr: errors.New("session closed")}
	fresh := &fakeHost{outputs: map[string]string{"sync": ""}}
	d, dials := newTestDUT(t, broken, fresh)

	if _, err := d.Run(ctx, "sync"); err == nil {
		t.Fatal("Run succeeded on a broken connection")
	}
	if _, err := d.Run(ctx, "sync"); err != nil {
		t.Fatal("Run failed after reconnect: ", err)
	}
	if *dials != 2 {
		t.Errorf("Dialed %d times; want 2", *dials)
	}
}

func TestRunKeepsConnectionOnExitError(t *testing.T) {
	ctx := context.Background()
	h := &fakeHost{runErr: &ssh.ExitError{Cmd: "false", Status: 1}}
	d, dials := newTestDUT(t, h)

	d.Run(ctx, "false")
	d.Run(ctx, "false")
	if *dials != 1 {
		t.Errorf("Dialed %d times; want 1", *dials)
	}
}

func TestReboot(t *testing.T) {
	ctx := context.Background()
	h := &fakeHost{runErr: errors.New("connection lost")}
	d, _ := newTestDUT(t, h)

	if err := d.Reboot(ctx); err != nil {
		t.Fatal("Reboot failed: ", err)
	}
	if diff := cmp.Diff(h.cmds, []string{"reboot"}); diff != "" {
		t.Errorf("Commands mismatch (-got +want):\n%s", diff)
	}
	if !h.closed {
		t.Error("Connection kept open after reboot")
	}
}
