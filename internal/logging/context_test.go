// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type entry struct {
	Level Level
	Msg   string
}

func collect(ctx context.Context) (context.Context, *[]entry) {
	var got []entry
	return AttachLogger(ctx, NewFuncLogger(func(level Level, ts time.Time, msg string) {
		got = append(got, entry{level, msg})
	})), &got
}

func TestNoLogger(t *testing.T) {
	ctx := context.Background()
	if HasLogger(ctx) {
		t.Error("HasLogger(context.Background()) = true")
	}
	// Must not panic.
	Info(ctx, "dropped")
	Debugf(ctx, "dropped %d", 1)
}

func TestLevelsAndPrefix(t *testing.T) {
	ctx, got := collect(context.Background())
	if !HasLogger(ctx) {
		t.Fatal("HasLogger = false after AttachLogger")
	}

	Info(ctx, "booting ", 1)
	ctx = SetLogPrefix(ctx, "[dut1] ")
	Debugf(ctx, "poll %d", 2)
	Warningf(SetLogPrefix(ctx, "[servo] "), "sync failed: %s", "eof")

	want := []entry{
		{LevelInfo, "booting 1"},
		{LevelDebug, "[dut1] poll 2"},
		{LevelWarning, "[dut1] [servo] sync failed: eof"},
	}
	if diff := cmp.Diff(*got, want); diff != "" {
		t.Errorf("Logs mismatch (-got +want):\n%s", diff)
	}
}

func TestPropagation(t *testing.T) {
	parent, outer := collect(context.Background())
	child, inner := collect(parent)

	Info(child, "both")
	Info(parent, "outer only")

	if diff := cmp.Diff(*inner, []entry{{LevelInfo, "both"}}); diff != "" {
		t.Errorf("Inner logs mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(*outer, []entry{{LevelInfo, "both"}, {LevelInfo, "outer only"}}); diff != "" {
		t.Errorf("Outer logs mismatch (-got +want):\n%s", diff)
	}
}

func TestSinkLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSinkLogger(LevelInfo, false, NewWriterSink(&buf))
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	l.Log(LevelDebug, ts, "hidden")
	l.Log(LevelInfo, ts, "shown")
	l.Log(LevelWarning, ts, "careful")

	if got, want := buf.String(), "shown\nWARNING: careful\n"; got != want {
		t.Errorf("Sink got %q; want %q", got, want)
	}

	buf.Reset()
	NewSinkLogger(LevelDebug, true, NewWriterSink(&buf)).Log(LevelDebug, ts, "x")
	if got, want := buf.String(), "2026-01-02T03:04:05.000000Z x\n"; got != want {
		t.Errorf("Timestamped sink got %q; want %q", got, want)
	}
}
