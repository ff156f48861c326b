// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. Pending After, Sleep and
// ticker waits fire during Advance in deadline order. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*wait
	changed *sync.Cond
}

type wait struct {
	due      time.Time
	ch       chan time.Time
	every    time.Duration // non-zero for tickers
	canceled bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.addLocked(&wait{due: c.now.Add(d), ch: ch})
	return ch
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &wait{due: c.now.Add(d), ch: make(chan time.Time, 1), every: d}
	c.addLocked(w)
	return &Ticker{C: w.ch, stop: func() {
		c.mu.Lock()
		w.canceled = true
		c.mu.Unlock()
	}}
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d > 0 {
		<-c.After(d)
	}
}

func (c *FakeClock) addLocked(w *wait) {
	c.pending = append(c.pending, w)
	c.changed.Broadcast()
}

// Advance moves the clock forward by d, firing every wait whose deadline
// is reached. A ticker spanning several intervals fires once per
// interval; ticks that do not fit in its buffer are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.expire(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// expire removes due one-shot waits, reschedules due tickers and returns
// everything that should fire, earliest first.
func (c *FakeClock) expire(target time.Time) []*wait {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due, keep []*wait
	for _, w := range c.pending {
		switch {
		case w.canceled:
		case w.due.After(target):
			keep = append(keep, w)
		default:
			due = append(due, w)
		}
	}
	slices.SortStableFunc(due, func(a, b *wait) int { return a.due.Compare(b.due) })
	for _, w := range due {
		if w.every > 0 {
			w.due = w.due.Add(w.every)
			keep = append(keep, w)
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n waits are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.countLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of live waits.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *FakeClock) countLocked() int {
	n := 0
	for _, w := range c.pending {
		if !w.canceled {
			n++
		}
	}
	return n
}
