// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time sources used by the control loop and
// the logging pipeline.
//
// Two notions of time are in play. Wall time (Clock) drives tickers,
// poll intervals and sleeps. Mission time (Mission) is the number of
// seconds since the control loop's epoch; behavior phases, trajectory
// profiles and log start times are all expressed in mission seconds.
//
// Production code injects Real(). Tests inject Fake() and move time
// forward explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go pipeline.Run(ctx)
//	c.WaitForTimers(1)               // the goroutine is now parked on a timer
//	c.Advance(10 * time.Millisecond) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a timer
// and the test advancing the clock.
package clock
