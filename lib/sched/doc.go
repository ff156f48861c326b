// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sched adjusts the scheduling priority of the calling OS
// thread.
//
// Background work that shares a machine with the control loop (the data
// logging goroutine, in particular) calls [LowerThreadPriority] once at
// the top of its goroutine. The goroutine is locked to its OS thread
// for the rest of its life and must not unlock it: when a locked
// goroutine exits, the runtime discards the thread instead of returning
// a lowered-priority thread to the pool.
package sched
