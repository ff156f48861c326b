// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package sched

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned on platforms without per-thread nice
// values.
var ErrUnsupported = errors.New("per-thread priority is not supported on " + runtime.GOOS)

// LowerThreadPriority locks the calling goroutine to its OS thread and
// returns ErrUnsupported.
func LowerThreadPriority(nice int) error {
	runtime.LockOSThread()
	return ErrUnsupported
}

// ThreadPriority returns ErrUnsupported.
func ThreadPriority() (int, error) {
	return 0, ErrUnsupported
}
