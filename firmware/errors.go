// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"fmt"
	"strings"
	"time"

	"go.chromium.org/fwmode/errors"
)

var (
	// ErrConsoleIdle is returned by DebugInterface.ReadConsoleLine when no
	// line arrives before the timeout.
	ErrConsoleIdle = errors.New("console idle")

	// ErrGBBForceRequired is returned when a platform can only switch
	// developer mode through GBB flags and the caller did not allow it.
	ErrGBBForceRequired = errors.New("platform requires GBB force to switch developer mode")
)

// TimeoutError is returned when a bounded wait expires before the DUT
// reaches the awaited condition.
type TimeoutError struct {
	// Op describes what was awaited, e.g. "wait for client".
	Op      string
	Elapsed time.Duration
	// Polls is the number of reachability checks issued.
	Polls int
	// State is the terminal device state, or nil if it could not be read.
	State *DeviceState
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: timed out after %v (%d polls)", e.Op, e.Elapsed, e.Polls)
	if e.State != nil {
		msg += "; device state " + e.State.String()
	}
	return msg
}

// UnexpectedStateError is returned when the DUT came back in a state the
// transition should not have produced. It is never retried.
type UnexpectedStateError struct {
	Actual   *DeviceState
	Expected Expectation
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("unexpected device state %v: %s",
		e.Actual, strings.Join(e.Expected.Mismatches(e.Actual), "; "))
}

// HardwareError is returned when the debug interface rejects an action or
// no channel can reach the DUT.
type HardwareError struct {
	Detail string
	// State is the terminal device state, or nil if it could not be read.
	State *DeviceState
	cause error
}

func newHardwareError(cause error, format string, args ...interface{}) *HardwareError {
	return &HardwareError{Detail: fmt.Sprintf(format, args...), cause: cause}
}

func (e *HardwareError) Error() string {
	msg := "hardware error: " + e.Detail
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	if e.State != nil {
		msg += "; device state " + e.State.String()
	}
	return msg
}

func (e *HardwareError) Unwrap() error { return e.cause }

// OutcomeKind classifies the result of a transition.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimeout
	OutcomeUnexpectedState
	OutcomeHardwareError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeTimeout:
		return "Timeout"
	case OutcomeUnexpectedState:
		return "UnexpectedState"
	case OutcomeHardwareError:
		return "HardwareError"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the tagged result of a transition. Only the fields of its Kind
// are set.
type Outcome struct {
	Kind OutcomeKind
	// Elapsed is set for OutcomeTimeout.
	Elapsed time.Duration
	// Actual and Expected are set for OutcomeUnexpectedState.
	Actual   *DeviceState
	Expected Expectation
	// Detail is set for OutcomeHardwareError.
	Detail string
	// Err is the error the outcome was derived from.
	Err error
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "Success"
	case OutcomeTimeout:
		return fmt.Sprintf("Timeout(%v)", o.Elapsed)
	case OutcomeUnexpectedState:
		return fmt.Sprintf("UnexpectedState(%v, %v)", o.Actual, o.Expected)
	default:
		return fmt.Sprintf("HardwareError(%s)", o.Detail)
	}
}

// Classify turns an error returned by a Switcher into an Outcome. Errors of
// none of the known types, such as a cancelled context, are reported as
// hardware errors.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}
	var te *TimeoutError
	var ue *UnexpectedStateError
	var he *HardwareError
	switch {
	case errors.As(err, &ue):
		return Outcome{Kind: OutcomeUnexpectedState, Actual: ue.Actual, Expected: ue.Expected, Err: err}
	case errors.As(err, &he):
		return Outcome{Kind: OutcomeHardwareError, Detail: he.Detail, Err: err}
	case errors.As(err, &te):
		return Outcome{Kind: OutcomeTimeout, Elapsed: te.Elapsed, Err: err}
	}
	return Outcome{Kind: OutcomeHardwareError, Detail: err.Error(), Err: err}
}

// TerminalState returns the device state carried by err, if any.
func TerminalState(err error) *DeviceState {
	var te *TimeoutError
	var ue *UnexpectedStateError
	var he *HardwareError
	switch {
	case errors.As(err, &ue):
		return ue.Actual
	case errors.As(err, &he):
		return he.State
	case errors.As(err, &te):
		return te.State
	}
	return nil
}

// attachState records st as the terminal state of err if err carries one
// and it is not set yet.
func attachState(err error, st *DeviceState) {
	if st == nil {
		return
	}
	var te *TimeoutError
	if errors.As(err, &te) && te.State == nil {
		te.State = st
	}
	var he *HardwareError
	if errors.As(err, &he) && he.State == nil {
		he.State = st
	}
}
