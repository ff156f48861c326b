// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logserver

import "sync"

// queue is a count-bounded FIFO of samples between the control loop
// (producer) and a log client (consumer). When a push would exceed the
// bound the oldest sample is dropped: a slow client loses old rows
// rather than stalling the control loop or growing without limit.
type queue struct {
	mu       sync.Mutex
	samples  []*Sample
	capacity int
	dropped  uint64
	notify   chan struct{}
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &queue{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (q *queue) push(sample *Sample) {
	q.mu.Lock()
	for len(q.samples) >= q.capacity {
		q.samples[0] = nil
		q.samples = q.samples[1:]
		q.dropped++
	}
	q.samples = append(q.samples, sample)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest sample, or nil.
func (q *queue) pop() *Sample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.samples) == 0 {
		return nil
	}
	sample := q.samples[0]
	q.samples[0] = nil
	q.samples = q.samples[1:]
	return sample
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.samples)
}

func (q *queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.samples)
	q.samples = nil
}

func (q *queue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
