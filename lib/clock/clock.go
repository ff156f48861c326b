// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"math"
	"time"
)

// Clock abstracts wall time. Every component that would call time.Now,
// time.After, time.NewTicker or time.Sleep takes a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. C has capacity 1: a consumer that
// falls behind misses ticks instead of queueing them, which is what a
// fixed-rate control loop wants.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Mission converts wall time into mission seconds relative to a fixed
// epoch. The epoch is set once at construction so ReadTime is safe to
// call from any goroutine.
type Mission struct {
	clock Clock
	epoch time.Time
}

// NewMission returns a mission time source whose zero is the clock's
// current time.
func NewMission(c Clock) *Mission {
	return &Mission{clock: c, epoch: c.Now()}
}

// ReadTime returns the seconds elapsed since the epoch.
func (m *Mission) ReadTime() float64 {
	return m.clock.Now().Sub(m.epoch).Seconds()
}

// Epoch returns the wall time that corresponds to mission time zero.
func (m *Mission) Epoch() time.Time { return m.epoch }

// Seconds converts a mission-time duration in seconds to a
// time.Duration, rounding to the nearest nanosecond.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
