// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import "context"

// doAsync runs body on a goroutine and returns its result, or ctx.Err() if
// ctx ends first. body always runs, even if ctx is already done.
//
// If doAsync ends up returning an error (body failed or ctx ended), clean
// runs after body on the same goroutine to undo body's effects. clean may
// be nil.
func doAsync(ctx context.Context, body func() error, clean func()) (retErr error) {
	bodyDone := make(chan error, 1)
	result := make(chan error, 1)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		bodyDone <- body()
		if err := <-result; err != nil && clean != nil {
			clean()
		}
	}()

	defer func() {
		result <- retErr
		select {
		case <-finished:
		case <-ctx.Done():
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case err := <-bodyDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
