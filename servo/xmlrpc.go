// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
)

// defaultRPCTimeout bounds a single servod call unless the caller asks for
// more. Power state changes can hold the power button for several seconds.
const defaultRPCTimeout = 10 * time.Second

// FaultError is an XML-RPC fault returned by servod, typically for an
// unknown control or a rejected value.
type FaultError struct {
	Code   int
	Reason string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("servod fault %d: %s", e.Code, e.Reason)
}

type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []param  `xml:"params>param"`
}

type methodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  []param  `xml:"params>param"`
	Fault   *param   `xml:"fault"`
}

type param struct {
	Value value `xml:"value"`
}

// value is an XML-RPC <value>. An untyped value is a string held in Text.
type value struct {
	Boolean *string  `xml:"boolean,omitempty"`
	Int     *string  `xml:"int,omitempty"`
	I4      *string  `xml:"i4,omitempty"`
	Double  *string  `xml:"double,omitempty"`
	String  *string  `xml:"string,omitempty"`
	Struct  *members `xml:"struct,omitempty"`
	Text    string   `xml:",chardata"`
}

type members struct {
	Members []member `xml:"member"`
}

type member struct {
	Name  string `xml:"name"`
	Value value  `xml:"value"`
}

func strPtr(s string) *string { return &s }

func encodeValue(arg interface{}) (value, error) {
	switch v := arg.(type) {
	case string:
		return value{String: strPtr(v)}, nil
	case bool:
		if v {
			return value{Boolean: strPtr("1")}, nil
		}
		return value{Boolean: strPtr("0")}, nil
	case int:
		return value{Int: strPtr(strconv.Itoa(v))}, nil
	case float64:
		return value{Double: strPtr(strconv.FormatFloat(v, 'f', -1, 64))}, nil
	}
	return value{}, errors.Errorf("unsupported XML-RPC argument type %T", arg)
}

func (v *value) str() string {
	switch {
	case v.String != nil:
		return *v.String
	case v.Int != nil:
		return *v.Int
	case v.I4 != nil:
		return *v.I4
	case v.Double != nil:
		return *v.Double
	case v.Boolean != nil:
		return *v.Boolean
	}
	return v.Text
}

func (v *value) decode(out interface{}) error {
	s := strings.TrimSpace(v.str())
	switch o := out.(type) {
	case *string:
		*o = v.str()
	case *bool:
		switch s {
		case "1":
			*o = true
		case "0":
			*o = false
		default:
			return errors.Errorf("bad XML-RPC boolean %q", s)
		}
	case *int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.Wrapf(err, "bad XML-RPC int %q", s)
		}
		*o = n
	case *float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "bad XML-RPC double %q", s)
		}
		*o = f
	default:
		return errors.Errorf("unsupported XML-RPC result type %T", out)
	}
	return nil
}

func (v *value) member(name string) (*value, bool) {
	if v.Struct == nil {
		return nil, false
	}
	for i := range v.Struct.Members {
		if v.Struct.Members[i].Name == name {
			return &v.Struct.Members[i].Value, true
		}
	}
	return nil, false
}

func encodeCall(method string, args []interface{}) ([]byte, error) {
	mc := methodCall{MethodName: method}
	for _, a := range args {
		v, err := encodeValue(a)
		if err != nil {
			return nil, err
		}
		mc.Params = append(mc.Params, param{v})
	}
	b, err := xml.Marshal(mc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

func decodeResponse(body []byte, out []interface{}) error {
	var resp methodResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "malformed XML-RPC response")
	}
	if resp.Fault != nil {
		fe := &FaultError{}
		if v, ok := resp.Fault.Value.member("faultCode"); ok {
			v.decode(&fe.Code)
		}
		if v, ok := resp.Fault.Value.member("faultString"); ok {
			fe.Reason = v.str()
		}
		return fe
	}
	if len(out) > len(resp.Params) {
		return errors.Errorf("got %d XML-RPC results; want %d", len(resp.Params), len(out))
	}
	for i, o := range out {
		if err := resp.Params[i].Value.decode(o); err != nil {
			return err
		}
	}
	return nil
}

// rpcClient calls methods on servod.
type rpcClient struct {
	url string
	hc  *http.Client
}

func newRPCClient(host string, port int) *rpcClient {
	return &rpcClient{
		url: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		hc:  &http.Client{},
	}
}

// call invokes method and decodes results into out. timeout bounds the call
// in addition to ctx; zero means defaultRPCTimeout.
func (c *rpcClient) call(ctx context.Context, timeout time.Duration, method string, args []interface{}, out ...interface{}) error {
	body, err := encodeCall(method, args)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml")
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "servod %s call failed", method)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("servod %s call returned HTTP %s", method, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read servod %s response", method)
	}
	return decodeResponse(b, out)
}
