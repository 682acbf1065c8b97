// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dut talks to the operating system running on a DUT.
package dut

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
	"go.chromium.org/fwmode/shutil"
	"go.chromium.org/fwmode/ssh"
)

const (
	connectTimeout = 10 * time.Second
	rebootTimeout  = 3 * time.Second
)

// remoteHost is the part of *ssh.Conn used by DUT.
type remoteHost interface {
	Ping(ctx context.Context, timeout time.Duration) error
	Output(ctx context.Context, cmd string) ([]byte, error)
	Close(ctx context.Context) error
}

// DUT is an SSH-backed proxy for a device under test. It reconnects lazily,
// so it stays usable across the reboots the mode switcher causes.
//
// A DUT is owned by a single goroutine.
type DUT struct {
	sopt ssh.Options
	hst  remoteHost

	dial func(ctx context.Context, o *ssh.Options) (remoteHost, error)
}

// New returns a DUT for target ("[user@]host[:port]"). No connection is made
// until one is needed.
func New(target, keyFile, keyDir, proxyCommand string) (*DUT, error) {
	d := &DUT{dial: dialSSH}
	if err := ssh.ParseTarget(target, &d.sopt); err != nil {
		return nil, err
	}
	d.sopt.ConnectTimeout = connectTimeout
	d.sopt.KeyFile = keyFile
	d.sopt.KeyDir = keyDir
	d.sopt.ProxyCommand = proxyCommand
	return d, nil
}

func dialSSH(ctx context.Context, o *ssh.Options) (remoteHost, error) {
	return ssh.New(ctx, o)
}

// HostName returns the DUT's "host:port".
func (d *DUT) HostName() string { return d.sopt.Hostname }

// Connect replaces any existing connection with a new one.
func (d *DUT) Connect(ctx context.Context) error {
	d.Disconnect(ctx)
	hst, err := d.dial(ctx, &d.sopt)
	if err != nil {
		return err
	}
	d.hst = hst
	logging.Debug(ctx, "Opened SSH connection to ", d.sopt.Hostname)
	return nil
}

// Disconnect closes the current connection, if any.
func (d *DUT) Disconnect(ctx context.Context) error {
	if d.hst == nil {
		return nil
	}
	hst := d.hst
	d.hst = nil
	return hst.Close(ctx)
}

// Close is an alias of Disconnect.
func (d *DUT) Close(ctx context.Context) error {
	return d.Disconnect(ctx)
}

// Connected reports whether the current connection answers a ping.
func (d *DUT) Connected(ctx context.Context, timeout time.Duration) bool {
	return d.hst != nil && d.hst.Ping(ctx, timeout) == nil
}

// IsReachable reports whether the DUT answers on SSH within timeout,
// connecting first if needed. Failures are logged and reported as false.
func (d *DUT) IsReachable(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if d.Connected(ctx, timeout) {
		return true
	}
	if err := d.Connect(ctx); err != nil {
		logging.Debugf(ctx, "%s unreachable: %v", d.sopt.Hostname, err)
		return false
	}
	return true
}

// Run runs a command on the DUT and returns its stdout. Each argument is
// shell-quoted.
func (d *DUT) Run(ctx context.Context, cmd string, args ...string) (string, error) {
	if d.hst == nil {
		if err := d.Connect(ctx); err != nil {
			return "", errors.Wrapf(err, "failed to connect to %s", d.sopt.Hostname)
		}
	}
	out, err := d.hst.Output(ctx, shutil.Command(cmd, args...))
	if err != nil {
		var ee *ssh.ExitError
		if !errors.As(err, &ee) {
			// Transport failure; force a reconnect next time.
			d.Disconnect(ctx)
		}
		return string(out), errors.Wrapf(err, "failed to run %s", cmd)
	}
	return string(out), nil
}

// BootID returns the kernel's boot_id, which changes on every boot.
func (d *DUT) BootID(ctx context.Context) (string, error) {
	out, err := d.Run(ctx, "cat", "/proc/sys/kernel/random/boot_id")
	return strings.TrimSpace(out), err
}

// Reboot asks the DUT to reboot and drops the connection. It does not wait
// for the DUT to come back. The reboot command usually loses its
// connection, so its error is ignored.
func (d *DUT) Reboot(ctx context.Context) error {
	if d.hst == nil {
		if err := d.Connect(ctx); err != nil {
			return errors.Wrapf(err, "failed to connect to %s", d.sopt.Hostname)
		}
	}
	rctx, cancel := context.WithTimeout(ctx, rebootTimeout)
	defer cancel()
	d.hst.Output(rctx, shutil.Command("reboot"))
	d.Disconnect(ctx)
	return nil
}
