// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package stack captures call stacks for the errors package.
package stack

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	maxDepth = 10 // frames kept per error

	ellipsis = "\t..." // marks a truncated trace
)

// Stack holds the program counters of a captured call stack.
type Stack []uintptr

// New captures the current call stack. skip=0 makes the caller of New the
// innermost frame.
func New(skip int) Stack {
	pc := make([]uintptr, maxDepth+1)
	return Stack(pc[:runtime.Callers(skip+2, pc)])
}

// Frames resolves s into function names and source locations, innermost
// first. At most maxDepth frames are returned.
func (s Stack) Frames() []runtime.Frame {
	var frames []runtime.Frame
	cf := runtime.CallersFrames(s)
	for len(frames) < maxDepth {
		f, more := cf.Next()
		frames = append(frames, f)
		if !more {
			break
		}
	}
	return frames
}

// String renders s with one "\tat func (file:line)" line per frame.
func (s Stack) String() string {
	frames := s.Frames()
	lines := make([]string, 0, len(frames)+1)
	for _, f := range frames {
		lines = append(lines, fmt.Sprintf("\tat %s (%s:%d)", f.Function, filepath.Base(f.File), f.Line))
	}
	if len(s) > maxDepth {
		lines = append(lines, ellipsis)
	}
	return strings.Join(lines, "\n")
}
