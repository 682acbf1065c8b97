// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServod is an XML-RPC server that records set calls and serves get
// calls from a fixed table.
type fakeServod struct {
	srv *httptest.Server

	mu      sync.Mutex
	values  map[string]string   // get results
	streams map[string][]string // successive get results; "" once drained
	sets    []string            // "name=value" in call order
	failSet map[string]bool     // controls whose set faults
}

func newFakeServod(t *testing.T) *fakeServod {
	f := &fakeServod{
		values:  map[string]string{"servo_type": "servo_v4_with_servo_micro"},
		streams: make(map[string][]string),
		failSet: make(map[string]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// servo returns a Servo connected to f.
func (f *fakeServod) servo(t *testing.T) *Servo {
	host, ps, err := net.SplitHostPort(f.srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(ps)
	if err != nil {
		t.Fatal(err)
	}
	return New(host, port)
}

func (f *fakeServod) setCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func (f *fakeServod) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var mc methodCall
	if err := xml.Unmarshal(body, &mc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var args []string
	for _, p := range mc.Params {
		args = append(args, p.Value.str())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case mc.MethodName == "get" && len(args) == 1:
		if q, ok := f.streams[args[0]]; ok {
			v := ""
			if len(q) > 0 {
				v, f.streams[args[0]] = q[0], q[1:]
			}
			writeString(w, v)
			return
		}
		if v, ok := f.values[args[0]]; ok {
			writeString(w, v)
			return
		}
	case mc.MethodName == "set" && len(args) == 2:
		if !f.failSet[args[0]] {
			f.sets = append(f.sets, args[0]+"="+args[1])
			fmt.Fprint(w, xml.Header+`<methodResponse><params><param><value><boolean>1</boolean></value></param></params></methodResponse>`)
			return
		}
	case mc.MethodName == "doc" && len(args) == 1:
		if _, ok := f.values[args[0]]; ok {
			writeString(w, "documented")
			return
		}
	}
	fmt.Fprintf(w, xml.Header+`<methodResponse><fault><value><struct>`+
		`<member><name>faultCode</name><value><int>1</int></value></member>`+
		`<member><name>faultString</name><value><string>No control named %s</string></value></member>`+
		`</struct></value></fault></methodResponse>`, xmlEscape(fmt.Sprint(args)))
}

func writeString(w io.Writer, s string) {
	fmt.Fprintf(w, xml.Header+`<methodResponse><params><param><value><string>%s</string></value></param></params></methodResponse>`, xmlEscape(s))
}

func xmlEscape(s string) string {
	var sb strings.Builder
	xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
