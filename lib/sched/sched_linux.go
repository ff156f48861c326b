// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LowerThreadPriority locks the calling goroutine to its OS thread and
// sets that thread's nice value to nice. On Linux, PRIO_PROCESS with a
// thread ID applies to the single thread.
//
// Lowering priority never needs privileges; raising it (a nice value
// below the current one) typically does, and is reported as an error.
func LowerThreadPriority(nice int) error {
	runtime.LockOSThread()
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return fmt.Errorf("setting nice %d on thread %d: %w", nice, tid, err)
	}
	return nil
}

// ThreadPriority returns the nice value of the calling thread. Only
// meaningful after LowerThreadPriority has locked the thread.
func ThreadPriority() (int, error) {
	// The raw syscall returns 20 - nice so that the result is never
	// negative; x/sys/unix passes that through unchanged.
	value, err := unix.Getpriority(unix.PRIO_PROCESS, unix.Gettid())
	if err != nil {
		return 0, fmt.Errorf("reading thread priority: %w", err)
	}
	return 20 - value, nil
}
