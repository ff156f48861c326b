// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logpipe is the background data logging pipeline.
//
// A [Pipeline] owns one goroutine that moves through three stages:
//
//   - Registration. A [Registrar] queries the log service, creates a
//     task and binds every configured variable. A failure at any step
//     discards the task and counts against a [RetryCounter]; once the
//     counter passes its ceiling, logging is disabled for the rest of
//     the process and the goroutine ends.
//   - Start and drain. The task starts immediately if mission time has
//     already reached the configured start, otherwise when the control
//     loop raises the [Barrier]. Every poll interval the pipeline moves
//     all queued samples to the file writer. When the task is done the
//     writer is closed and the goroutine idles until stopped.
//   - Teardown. Stop, or cancellation of the context passed to Start,
//     aborts the in-flight task and closes the writer and the service
//     connection, whichever stage was active.
//
// The task and writer are owned by the pipeline goroutine. The control
// loop only raises the barrier and reads atomic status.
package logpipe
