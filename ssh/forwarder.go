// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"io"
	"net"
	"sync"
)

// Forwarder accepts local TCP connections and relays each one to a remote
// address through an established SSH connection. It is used to reach
// servod on a servo host:
//
//	[xmlrpc client] <-TCP-> [Forwarder] <-SSH-> [sshd] <-TCP-> [servod]
type Forwarder struct {
	ls   net.Listener
	dial func() (net.Conn, error)

	mu      sync.Mutex
	errFunc func(error) // nil after Close
}

func newForwarder(localAddr string, dial func() (net.Conn, error), errFunc func(error)) (*Forwarder, error) {
	ls, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	f := &Forwarder{ls: ls, dial: dial, errFunc: errFunc}
	go f.serve()
	return f, nil
}

func (f *Forwarder) serve() {
	for {
		local, err := f.ls.Accept()
		if err != nil {
			return
		}
		go func() {
			if err := f.relay(local); err != nil {
				f.report(err)
			}
		}()
	}
}

func (f *Forwarder) report(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFunc != nil {
		f.errFunc(err)
	}
}

// relay copies data both ways until either side closes. local is always
// closed on return.
func (f *Forwarder) relay(local net.Conn) error {
	defer local.Close()
	remote, err := f.dial()
	if err != nil {
		return err
	}
	defer remote.Close()

	errs := make(chan error, 2)
	go func() {
		_, err := io.Copy(local, remote)
		errs <- err
	}()
	go func() {
		_, err := io.Copy(remote, local)
		errs <- err
	}()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && err != io.EOF && first == nil {
			first = err
		}
		// Unblock the other copy once one direction is done.
		local.Close()
		remote.Close()
	}
	return first
}

// LocalAddr returns the address the forwarder listens on.
func (f *Forwarder) LocalAddr() net.Addr {
	return f.ls.Addr()
}

// Close stops accepting connections. Relays already running continue.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	f.errFunc = nil
	f.mu.Unlock()
	return f.ls.Close()
}
