// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"testing"
)

func TestSplitHostPort(t *testing.T) {
	for _, tc := range []struct {
		in      string
		host    string
		port    int
		sshPort int
		wantErr bool
	}{
		{"", "localhost", 9999, 22, false},
		{"rutabaga", "rutabaga", 9999, 22, false},
		{"rutabaga:1234", "rutabaga", 1234, 22, false},
		{"rutabaga:1234:ssh:333", "rutabaga", 1234, 333, false},
		{"rutabaga:1234:nossh", "rutabaga", 1234, 0, false},
		{":1234", "localhost", 1234, 22, false},
		{"[::2]", "::2", 9999, 22, false},
		{"[::2]:1234", "::2", 1234, 22, false},
		{"[::2]:1234:ssh:333", "::2", 1234, 333, false},
		{"1.2.3.4:1234", "1.2.3.4", 1234, 22, false},
		{"satlab-0wgtfqin20158027-host2-docker_servod:9999", "satlab-0wgtfqin20158027-host2-docker_servod", 9999, 22, false},
		{"rutabaga:port", "", 0, 0, true},
		{"rutabaga:-1", "", 0, 0, true},
		{"rutabaga:1234:ssh:nope", "", 0, 0, true},
		{"rutabaga:1234:ssh:0", "", 0, 0, true},
		{"[::2", "", 0, 0, true},
		{"[::2]x:1234", "", 0, 0, true},
		{"::2:1234", "", 0, 0, true},
	} {
		host, port, sshPort, err := splitHostPort(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("splitHostPort(%q) succeeded; want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitHostPort(%q) failed: %v", tc.in, err)
			continue
		}
		if host != tc.host || port != tc.port || sshPort != tc.sshPort {
			t.Errorf("splitHostPort(%q) = (%q, %d, %d); want (%q, %d, %d)",
				tc.in, host, port, sshPort, tc.host, tc.port, tc.sshPort)
		}
	}
}

func TestIsServodCmdline(t *testing.T) {
	for _, tc := range []struct {
		args []string
		port int
		want bool
	}{
		{[]string{"/usr/bin/python3", "/usr/bin/servod", "-b", "octopus", "-p", "9901"}, 9901, true},
		{[]string{"servod", "--port=9901"}, 9901, true},
		{[]string{"start", "servod", "PORT=9902"}, 9901, false},
		{[]string{"servod", "-b", "octopus"}, 9999, true},
		{[]string{"servod", "-b", "octopus"}, 9901, false},
		{[]string{"sshd", "-p", "9901"}, 9901, false},
	} {
		if got := isServodCmdline(tc.args, tc.port); got != tc.want {
			t.Errorf("isServodCmdline(%q, %d) = %v; want %v", tc.args, tc.port, got, tc.want)
		}
	}
}
