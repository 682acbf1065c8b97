// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil builds shell command lines for remote execution.
package shutil

import (
	"regexp"
	"strings"
)

// plainRE matches words that need no quoting. A leading "=" is excluded
// because zsh expands it.
var plainRE = regexp.MustCompile(`^[-\w@%+:,./][-\w@%+:,./=]*$`)

// Escape quotes s for a POSIX shell unless it is already safe as a word.
func Escape(s string) string {
	if plainRE.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// EscapeSlice quotes every element of args and joins them with spaces.
func EscapeSlice(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Escape(a)
	}
	return strings.Join(quoted, " ")
}

// Command returns a command line running name with args, each argument
// quoted separately.
func Command(name string, args ...string) string {
	return EscapeSlice(append([]string{name}, args...))
}
