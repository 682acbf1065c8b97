// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"bytes"
	"context"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
)

// DialProxyCommand starts proxyCommand and returns a connection over its
// stdin and stdout. Only the %h and %p tokens of ssh_config are supported.
func DialProxyCommand(ctx context.Context, hostPort, proxyCommand string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, err
	}
	line := strings.NewReplacer("%%", "%", "%h", host, "%p", port).Replace(proxyCommand)
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil, errors.Errorf("empty proxy command %q", proxyCommand)
	}
	logging.Debugf(ctx, "Connecting with proxy command: %s", line)

	cmd := exec.Command(args[0], args[1:]...)
	conn := &pipeConn{}
	if conn.WriteCloser, err = cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if conn.ReadCloser, err = cmd.StdoutPipe(); err != nil {
		return nil, err
	}
	cmd.Stderr = &conn.stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start proxy command %q", line)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.Infof(ctx, "Proxy command %q failed: %v; stderr: %s", line, err, conn.stderr.String())
		}
	}()
	return conn, nil
}

// pipeConn is a net.Conn over a child process's pipes. It is also its own
// placeholder net.Addr.
type pipeConn struct {
	io.ReadCloser
	io.WriteCloser
	stderr bytes.Buffer
}

func (c *pipeConn) Close() error {
	rerr := c.ReadCloser.Close()
	werr := c.WriteCloser.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

func (c *pipeConn) LocalAddr() net.Addr  { return c }
func (c *pipeConn) RemoteAddr() net.Addr { return c }

func (*pipeConn) SetDeadline(time.Time) error      { return errors.New("deadlines not supported") }
func (*pipeConn) SetReadDeadline(time.Time) error  { return errors.New("deadlines not supported") }
func (*pipeConn) SetWriteDeadline(time.Time) error { return errors.New("deadlines not supported") }

func (*pipeConn) Network() string { return "proxycommand" }
func (*pipeConn) String() string  { return "0.0.0.0:0" }
