// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

import "sync"

// Barrier is a one-shot signal from the control loop to the pipeline.
// The zero value is not usable; call NewBarrier.
type Barrier struct {
	once sync.Once
	done chan struct{}
}

// NewBarrier returns a barrier that has not been raised.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Raise releases everyone waiting on Done. Only the first call has an
// effect; it reports whether this call was the one.
func (b *Barrier) Raise() bool {
	raised := false
	b.once.Do(func() {
		close(b.done)
		raised = true
	})
	return raised
}

// Done is closed once the barrier has been raised.
func (b *Barrier) Done() <-chan struct{} { return b.done }

// Raised reports whether Raise has been called.
func (b *Barrier) Raised() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
