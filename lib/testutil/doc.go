// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend] and [RequireClosed] bound every wait on
// a channel with a wall-clock timeout so that a broken goroutine fails
// the test instead of hanging it. They are the only place tests use real
// time; everything else runs on clock.Fake.
//
// [LogRecorder] is an slog.Handler that keeps records in memory so that
// tests can assert on warnings and messages emitted by the code under
// test. [Logger] returns a logger that discards output unless the test
// runs with -v.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
