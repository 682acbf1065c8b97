// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ssh connects to DUTs and servo hosts over SSH.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/net/proxy"
	"golang.org/x/term"

	"go.chromium.org/fwmode/errors"
)

const (
	defaultUser = "root"
	defaultPort = 22

	// pingRequest is a global request every SSH server must answer.
	// See RFC 4253 11.2.
	pingRequest = "SSH_MSG_IGNORE"
)

var targetRE = regexp.MustCompile(`^(?:([^@]+)@)?([^@]+)$`)

// Keys searched in Options.KeyDir. testing_rsa is the key installed in
// ChromeOS test images; partner_testing_rsa is its partner-lab variant.
var defaultKeyNames = []string{"testing_rsa", "partner_testing_rsa", "mobbase_id_rsa", "id_ecdsa", "id_ed25519", "id_rsa"}

// Conn is an SSH connection to a DUT or servo host.
type Conn struct {
	cl *ssh.Client
}

// Options describes how to reach an SSH server.
type Options struct {
	// User defaults to root.
	User string
	// Hostname is "host:port".
	Hostname string

	// KeyFile is an optional unencrypted private key.
	KeyFile string
	// KeyDir is an optional directory (usually ~/.ssh) searched for
	// well-known unencrypted keys.
	KeyDir string

	// ProxyCommand, if set, is run to obtain the transport, as with
	// ssh_config's ProxyCommand. %h and %p are replaced.
	ProxyCommand string

	// ConnectTimeout bounds each TCP and handshake attempt.
	ConnectTimeout time.Duration
	// ConnectRetries is the number of extra attempts after a failure.
	ConnectRetries int
	// ConnectRetryInterval is the minimum time between attempt starts.
	ConnectRetryInterval time.Duration

	// WarnFunc, if set, receives non-fatal connection problems.
	WarnFunc func(string)
}

func (o *Options) warn(format string, args ...interface{}) {
	if o.WarnFunc != nil {
		o.WarnFunc(fmt.Sprintf(format, args...))
	}
}

// ParseTarget fills o.User and o.Hostname from a "[user@]host[:port]"
// target, applying default user and port.
func ParseTarget(target string, o *Options) error {
	m := targetRE.FindStringSubmatch(target)
	if m == nil {
		return errors.Errorf("couldn't parse %q as \"[user@]hostname[:port]\"", target)
	}
	o.User = defaultUser
	if m[1] != "" {
		o.User = m[1]
	}
	if _, _, err := net.SplitHostPort(m[2]); err != nil {
		o.Hostname = net.JoinHostPort(m[2], strconv.Itoa(defaultPort))
	} else {
		o.Hostname = m[2]
	}
	return nil
}

func authMethods(o *Options) ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer
	if o.KeyFile != "" {
		s, _, err := readPrivateKey(o.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read private key %s", o.KeyFile)
		}
		signers = append(signers, s)
	}
	if o.KeyDir != "" {
		for _, name := range defaultKeyNames {
			p := filepath.Join(o.KeyDir, name)
			if p == o.KeyFile {
				continue
			}
			if _, err := os.Stat(p); os.IsNotExist(err) {
				continue
			}
			s, read, err := readPrivateKey(p)
			if err == nil {
				signers = append(signers, s)
			} else if !read {
				o.warn("Failed to read %v: %v", p, err)
			}
		}
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if a, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(a).Signers))
		} else {
			o.warn("Failed to connect to ssh-agent at %v: %v", sock, err)
		}
	}
	if stdin := int(os.Stdin.Fd()); term.IsTerminal(stdin) {
		prefix := "[" + o.Hostname + "] "
		methods = append(methods, ssh.KeyboardInteractive(
			func(user, inst string, qs []string, echos []bool) ([]string, error) {
				return answerChallenges(stdin, prefix, qs)
			}))
	}
	return methods, nil
}

// readPrivateKey parses a passphraseless key. read reports whether the file
// itself could be read, so unreadable and malformed keys can be told apart.
func readPrivateKey(path string) (s ssh.Signer, read bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	s, err = ssh.ParsePrivateKey(b)
	return s, true, err
}

// answerChallenges prompts on the terminal for each keyboard-interactive
// question. The host prefix keeps users from typing a local sudo password
// by reflex.
func answerChallenges(stdin int, prefix string, qs []string) ([]string, error) {
	answers := make([]string, len(qs))
	for i, q := range qs {
		os.Stdout.WriteString(prefix + q)
		b, err := term.ReadPassword(stdin)
		os.Stdout.WriteString("\n")
		if err != nil {
			return nil, err
		}
		answers[i] = string(b)
	}
	return answers, nil
}

// New connects to the server described by o, retrying per o's settings.
// The caller must Close the returned Conn.
func New(ctx context.Context, o *Options) (*Conn, error) {
	if o.User == "" {
		o.User = defaultUser
	}
	am, err := authMethods(o)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            o.User,
		Auth:            am,
		Timeout:         o.ConnectTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	for i := 0; ; i++ {
		start := time.Now()
		cl, err := dial(ctx, o.Hostname, o.ProxyCommand, cfg)
		if err == nil {
			return &Conn{cl: cl}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i >= o.ConnectRetries {
			return nil, err
		}
		wait := o.ConnectRetryInterval - time.Since(start)
		if wait <= 0 {
			o.warn("Retrying SSH connection: %v", err)
			continue
		}
		o.warn("Retrying SSH connection in %v: %v", wait.Round(time.Millisecond), err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func dial(ctx context.Context, hostPort, proxyCommand string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	var cl *ssh.Client
	if err := doAsync(ctx, func() error {
		var conn net.Conn
		var err error
		if proxyCommand == "" || strings.EqualFold(proxyCommand, "none") {
			conn, err = proxy.FromEnvironment().Dial("tcp", hostPort)
		} else {
			conn, err = DialProxyCommand(ctx, hostPort, proxyCommand)
		}
		if err != nil {
			return err
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, hostPort, cfg)
		if err != nil {
			conn.Close()
			return err
		}
		cl = ssh.NewClient(c, chans, reqs)
		return nil
	}, func() {
		if cl != nil {
			cl.Close()
		}
	}); err != nil {
		return nil, err
	}
	return cl, nil
}

// Close closes the connection.
func (c *Conn) Close(ctx context.Context) error {
	return doAsync(ctx, c.cl.Close, nil)
}

// Ping sends a no-op request and waits for the reply. It fails if the
// connection is dead or no reply arrives within timeout.
func (c *Conn) Ping(ctx context.Context, timeout time.Duration) error {
	ch := make(chan error, 1)
	go func() {
		_, _, err := c.cl.SendRequest(pingRequest, true, nil)
		ch <- err
	}()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return errors.Errorf("no ping reply in %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForwardLocalToRemote listens on localAddr and forwards each connection to
// remoteAddr as resolved by the SSH server. network must be a TCP network.
func (c *Conn) ForwardLocalToRemote(network, localAddr, remoteAddr string, errFunc func(error)) (*Forwarder, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, errors.Errorf("unsupported network type: %s", network)
	}
	return newForwarder(localAddr, func() (net.Conn, error) {
		return c.cl.Dial(network, remoteAddr)
	}, errFunc)
}
