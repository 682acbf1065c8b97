// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logging routes log messages through loggers attached to a
// context.Context.
package logging

import (
	"fmt"
	"sync"
	"time"
)

// Level is the importance of a log message. Larger is more important.
type Level int

const (
	// LevelDebug is for poll results and other chatter.
	LevelDebug Level = iota
	// LevelInfo is for transition progress.
	LevelInfo
	// LevelWarning is for swallowed failures worth an operator's attention.
	LevelWarning
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Logger consumes log messages sent via a context.
type Logger interface {
	Log(level Level, ts time.Time, msg string)
}

// MultiLogger copies messages to several loggers.
type MultiLogger struct {
	mu      sync.Mutex
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger writing to loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log forwards a message to every underlying logger.
func (ml *MultiLogger) Log(level Level, ts time.Time, msg string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, l := range ml.loggers {
		l.Log(level, ts, msg)
	}
}

// AddLogger adds l to the set of underlying loggers.
func (ml *MultiLogger) AddLogger(l Logger) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.loggers = append(ml.loggers, l)
}

// FuncLogger is a Logger that calls a function. Calls are serialized.
type FuncLogger struct {
	mu sync.Mutex
	f  func(level Level, ts time.Time, msg string)
}

// NewFuncLogger returns a FuncLogger calling f.
func NewFuncLogger(f func(level Level, ts time.Time, msg string)) *FuncLogger {
	return &FuncLogger{f: f}
}

// Log calls the underlying function.
func (l *FuncLogger) Log(level Level, ts time.Time, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.f(level, ts, msg)
}
