// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/shirou/gopsutil/v3/process"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.chromium.org/chromiumos/config/go/test/api"
	"go.chromium.org/chromiumos/infra/proto/go/satlabrpcserver"

	"go.chromium.org/fwmode/errors"
	"go.chromium.org/fwmode/internal/logging"
	"go.chromium.org/fwmode/shutil"
	"go.chromium.org/fwmode/ssh"
)

const (
	proxyTimeout = 10 * time.Second // max time for establishing SSH connection

	defaultServoHost = "localhost"
	defaultServoPort = 9999
	defaultSSHPort   = 22

	dockerSuffix = "docker_servod"

	// DefaultSatlabAddress is the satlab RPC server that starts servod
	// containers.
	DefaultSatlabAddress = "192.168.231.1:6003"
)

// ProxyOptions customizes NewProxy.
type ProxyOptions struct {
	// KeyFile and KeyDir are used for the servo host SSH connection.
	KeyFile string
	KeyDir  string
	// SatlabAddress is used to start stopped servod containers. Empty
	// means DefaultSatlabAddress.
	SatlabAddress string
}

// Proxy wraps a Servo and forwards connections to servod over SSH if needed.
type Proxy struct {
	svo *Servo
	hst *ssh.Conn      // nil if servod is running locally
	fwd *ssh.Forwarder // nil if servod is running locally or inside a docker container
	dcl *client.Client // nil if servod is not running inside a docker container
}

func isDockerHost(host string) bool {
	return strings.HasSuffix(host, dockerSuffix)
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// splitHostPort parses a servo address into the servod host, servod port
// and servo host SSH port. An SSH port of 0 means no SSH.
func splitHostPort(servoHostPort string) (string, int, int, error) {
	host := defaultServoHost
	port := defaultServoPort
	sshPort := defaultSSHPort

	if strings.Contains(servoHostPort, dockerSuffix) {
		return strings.Split(servoHostPort, ":")[0], port, sshPort, nil
	}

	hostport := servoHostPort
	if strings.HasSuffix(hostport, ":nossh") {
		sshPort = 0
		hostport = strings.TrimSuffix(hostport, ":nossh")
	}
	if sshParts := strings.SplitN(hostport, ":ssh:", 2); len(sshParts) == 2 {
		hostport = sshParts[0]
		var err error
		if sshPort, err = strconv.Atoi(sshParts[1]); err != nil {
			return "", 0, 0, errors.Wrap(err, "parsing servo host ssh port")
		}
		if sshPort <= 0 {
			return "", 0, 0, errors.New("invalid servo host ssh port")
		}
	}

	// The port starts after the last colon.
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 {
		if hostport != "" {
			host = hostport
		}
		return host, port, sshPort, nil
	}
	if hostport[0] == '[' {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", 0, 0, errors.New("missing ']' in address")
		}
		switch end + 1 {
		case len(hostport): // no port
			if hostport[1:end] != "" {
				host = hostport[1:end]
			}
			return host, port, sshPort, nil
		case i:
			if hostport[1:end] != "" {
				host = hostport[1:end]
			}
		default:
			return "", 0, 0, errors.New("servo arg must be of the form hostname:9999 or hostname:9999:ssh:22 or [::1]:9999")
		}
	} else {
		if hostport[:i] != "" {
			host = hostport[:i]
		}
		if strings.IndexByte(host, ':') >= 0 {
			return "", 0, 0, errors.New("unexpected colon in hostname")
		}
	}
	var err error
	if port, err = strconv.Atoi(hostport[i+1:]); err != nil {
		return "", 0, 0, errors.Wrap(err, "parsing servo port")
	}
	if port <= 0 {
		return "", 0, 0, errors.New("invalid servo port")
	}
	return host, port, sshPort, nil
}

// NewProxy returns a Proxy for the servod instance at servoHostPort, which
// may be blank (localhost:9999), a hostname, host:port, host:port:ssh:N,
// host:port:nossh, [::1]:port or a container name ending in docker_servod.
//
// A remote servod is reached through an SSH connection to its host with a
// local port forwarded to servod.
func NewProxy(ctx context.Context, servoHostPort string, opts ProxyOptions) (newProxy *Proxy, retErr error) {
	var pxy Proxy
	toClose := &pxy
	defer func() {
		if toClose != nil {
			toClose.Close(ctx)
		}
	}()

	host, port, sshPort, err := splitHostPort(servoHostPort)
	if err != nil {
		return nil, err
	}

	switch {
	case isDockerHost(host):
		if err := pxy.ensureContainer(ctx, host, opts.SatlabAddress); err != nil {
			return nil, err
		}
	case sshPort > 0 && (!isLocalHost(host) || sshPort != defaultSSHPort):
		sopt := ssh.Options{
			KeyFile:        opts.KeyFile,
			KeyDir:         opts.KeyDir,
			ConnectTimeout: proxyTimeout,
			WarnFunc:       func(msg string) { logging.Info(ctx, msg) },
			Hostname:       net.JoinHostPort(host, fmt.Sprint(sshPort)),
			User:           "root",
		}
		logging.Infof(ctx, "Opening servo SSH connection to %s", sopt.Hostname)
		if pxy.hst, err = ssh.New(ctx, &sopt); err != nil {
			return nil, err
		}
		remotePort := port
		defer func() {
			if retErr != nil {
				logServoStatus(ctx, pxy.hst, remotePort)
			}
		}()

		logging.Info(ctx, "Creating forwarded connection to port ", port)
		pxy.fwd, err = pxy.hst.ForwardLocalToRemote("tcp", "localhost:0", fmt.Sprintf("localhost:%d", port),
			func(err error) { logging.Info(ctx, "Got servo forwarding error: ", err) })
		if err != nil {
			return nil, err
		}
		var portstr string
		if host, portstr, err = net.SplitHostPort(pxy.fwd.LocalAddr().String()); err != nil {
			return nil, err
		}
		if port, err = strconv.Atoi(portstr); err != nil {
			return nil, errors.Wrap(err, "parsing forwarded servo port")
		}
	default:
		checkLocalServod(ctx, port)
	}

	logging.Infof(ctx, "Connecting to servod at %s:%d", host, port)
	pxy.svo = New(host, port)
	if _, err := pxy.svo.ServoType(ctx); err != nil {
		return nil, errors.Wrapf(err, "servod at %s:%d is not responding", host, port)
	}
	toClose = nil // disarm cleanup
	return &pxy, nil
}

// ensureContainer starts the servod container through satlab unless it
// is already running.
func (p *Proxy) ensureContainer(ctx context.Context, name, satlabAddr string) error {
	var err error
	if p.dcl, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation()); err != nil {
		return errors.Wrap(err, "failed to create docker client")
	}
	info, err := p.dcl.ContainerInspect(ctx, name)
	if err == nil && info.ContainerJSONBase != nil && info.State != nil && info.State.Running {
		return nil
	}
	if satlabAddr == "" {
		satlabAddr = DefaultSatlabAddress
	}
	logging.Infof(ctx, "Starting servod container %s via satlab RPC server %s", name, satlabAddr)
	conn, err := grpc.NewClient(satlabAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "failed to connect to satlab")
	}
	defer conn.Close()
	c := satlabrpcserver.NewSatlabRpcServiceClient(conn)
	if _, err := c.StartServod(ctx, &api.StartServodRequest{ServodDockerContainerName: name}); err != nil {
		return errors.Wrapf(err, "failed to start servod container %s", name)
	}
	return nil
}

// checkLocalServod logs a warning if no local servod serves port.
func checkLocalServod(ctx context.Context, port int) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		logging.Debugf(ctx, "Failed to list processes: %v", err)
		return
	}
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isServodCmdline(args, port) {
			continue
		}
		logging.Debugf(ctx, "Found local servod (pid %d) on port %d", p.Pid, port)
		return
	}
	logging.Warningf(ctx, "No local servod process found for port %d", port)
}

// isServodCmdline reports whether args starts servod listening on port.
func isServodCmdline(args []string, port int) bool {
	servod := false
	for _, a := range args {
		if strings.HasSuffix(a, "/servod") || a == "servod" {
			servod = true
			break
		}
	}
	if !servod {
		return false
	}
	ps := strconv.Itoa(port)
	for i, a := range args {
		switch {
		case a == "PORT="+ps, a == "--port="+ps:
			return true
		case (a == "-p" || a == "--port") && i+1 < len(args) && args[i+1] == ps:
			return true
		}
	}
	// servod without an explicit port listens on the default one.
	return port == defaultServoPort && !strings.Contains(strings.Join(args, " "), "PORT=")
}

// logServoStatus logs the servod status as seen from the servo host.
func logServoStatus(ctx context.Context, hst *ssh.Conn, port int) {
	ps := strconv.Itoa(port)
	out, err := hst.Output(ctx, shutil.EscapeSlice([]string{"servodtool", "instance", "show", "-p", ps}))
	if err != nil {
		logging.Infof(ctx, "Servod process is not initialized on the servo host: %v", err)
		return
	}
	logging.Infof(ctx, "Servod instance is running on port %v of the servo host", port)
	if out, err = hst.Output(ctx, shutil.EscapeSlice([]string{"dut-control", "-p", ps, "serialname"})); err != nil {
		logging.Infof(ctx, "The servod is not responsive or busy: %v", err)
		return
	}
	logging.Info(ctx, "Servod is responsive and reports serialname: ", strings.TrimSpace(string(out)))
}

// Close closes the proxy's connections.
func (p *Proxy) Close(ctx context.Context) {
	if p.svo != nil {
		if err := p.svo.Close(ctx); err != nil {
			logging.Infof(ctx, "Failed to close servo: %v", err)
		}
		p.svo = nil
	}
	if p.fwd != nil {
		p.fwd.Close()
		p.fwd = nil
	}
	if p.hst != nil {
		p.hst.Close(ctx)
		p.hst = nil
	}
	if p.dcl != nil {
		p.dcl.Close()
		p.dcl = nil
	}
}

// Servo returns the proxy's Servo.
func (p *Proxy) Servo() *Servo { return p.svo }
