// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package errors constructs errors that remember where they were created.
//
// Use New or Errorf for fresh errors and Wrap or Wrapf to add context:
//
//	errors.New("servod not running")
//	errors.Wrapf(err, "failed to set %s", name)
//
// Formatting an error with "%+v" prints every error in the chain together
// with its stack trace. Is, As, Unwrap and Join behave like their standard
// library counterparts, so this package can replace "errors" in imports.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"go.chromium.org/fwmode/errors/stack"
)

// chained is the error type returned by New, Errorf, Wrap and Wrapf.
type chained struct {
	msg   string
	stk   stack.Stack
	cause error // nil for leaf errors
}

func (e *chained) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

// Unwrap returns the wrapped error, if any.
func (e *chained) Unwrap() error {
	return e.cause
}

// Format supports "%+v" to print the chain with stack traces.
func (e *chained) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, trace(e))
		return
	}
	io.WriteString(s, e.Error())
}

// trace renders err and its causes, one block per error. Errors from other
// packages end the chain with an unknown location.
func trace(err error) string {
	var blocks []string
	for err != nil {
		e, ok := err.(*chained)
		if !ok {
			blocks = append(blocks, err.Error()+"\n\tat ???")
			break
		}
		blocks = append(blocks, e.msg+"\n"+e.stk.String())
		err = e.cause
	}
	return strings.Join(blocks, "\n")
}

// New returns an error with message msg.
func New(msg string) error {
	return &chained{msg: msg, stk: stack.New(1)}
}

// Errorf returns an error with a formatted message. Unlike fmt.Errorf, %w is
// not interpreted; use Wrapf to keep a cause.
func Errorf(format string, args ...interface{}) error {
	return &chained{msg: fmt.Sprintf(format, args...), stk: stack.New(1)}
}

// Wrap returns an error with message msg caused by cause.
// A nil cause makes this equivalent to New.
func Wrap(cause error, msg string) error {
	return &chained{msg: msg, stk: stack.New(1), cause: cause}
}

// Wrapf is like Wrap with a formatted message.
func Wrapf(cause error, format string, args ...interface{}) error {
	return &chained{msg: fmt.Sprintf(format, args...), stk: stack.New(1), cause: cause}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the error err wraps, or nil.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error wrapping every non-nil error in errs, or nil if
// there are none.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
