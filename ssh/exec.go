// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"go.chromium.org/fwmode/errors"
)

// ExitError reports a remote command that exited with a non-zero status.
type ExitError struct {
	Cmd    string
	Status int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%q exited with status %d", e.Cmd, e.Status)
	}
	return fmt.Sprintf("%q exited with status %d: %s", e.Cmd, e.Status, e.Stderr)
}

// Output runs the shell command line cmd and returns its stdout. The
// remote process is killed if ctx expires first.
func (c *Conn) Output(ctx context.Context, cmd string) ([]byte, error) {
	var sess *ssh.Session
	if err := doAsync(ctx, func() error {
		var err error
		sess, err = c.cl.NewSession()
		return err
	}, func() {
		if sess != nil {
			sess.Close()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	runErr := doAsync(ctx, func() error { return sess.Run(cmd) }, nil)

	if err := doAsync(ctx, func() error {
		sess.Signal(ssh.SIGKILL)
		return sess.Close()
	}, nil); err != nil && err != io.EOF && runErr == nil {
		runErr = err
	}

	var ee *ssh.ExitError
	if errors.As(runErr, &ee) {
		return stdout.Bytes(), &ExitError{Cmd: cmd, Status: ee.ExitStatus(), Stderr: string(bytes.TrimSpace(stderr.Bytes()))}
	}
	return stdout.Bytes(), runErr
}

// Run is like Output but discards stdout.
func (c *Conn) Run(ctx context.Context, cmd string) error {
	_, err := c.Output(ctx, cmd)
	return err
}
