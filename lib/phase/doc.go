// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package phase runs timed behavior state machines inside a fixed-rate
// control loop.
//
// A Machine has one current state and the mission time at which it was
// entered (the mark). Each state carries Entry, During and Exit
// handlers. Transitions are ordered guarded edges evaluated against the
// time spent in the current state; the first edge whose guard holds wins.
// Next exposes that transition function without side effects.
//
// Step(now) is called once per control cycle:
//
//   - if an edge out of the current state fires, the current state's Exit
//     runs, then the new state's Entry, and the mark moves to now. The
//     During handler does not run in that cycle.
//   - otherwise the current state's During runs.
//
// Machines are owned by exactly one goroutine (the control loop) and are
// not safe for concurrent use.
package phase
