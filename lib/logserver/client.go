// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logserver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	// ErrTaskStarted is returned when a task's bindings change after
	// StartLog, or StartLog is called twice.
	ErrTaskStarted = errors.New("log task already started")

	// ErrNoVariables is returned by StartLog for a task with no bound
	// variables.
	ErrNoVariables = errors.New("log task has no variables")
)

// Client is one connection to a Server. Its methods are safe to call
// from any goroutine.
type Client struct {
	server *Server
	closed atomic.Bool
}

// Query reports whether the server is reachable and accepting tasks.
func (c *Client) Query() bool {
	return !c.closed.Load() && c.server.active.Load()
}

// NewTask creates an empty task in the registering state.
func (c *Client) NewTask() (*Task, error) {
	if !c.Query() {
		return nil, ErrUnavailable
	}
	return &Task{server: c.server, queue: newQueue(c.server.capacity)}, nil
}

// Close disconnects the client. Tasks created through it are not
// affected; abort them first.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// Status is a task's lifecycle state.
type Status int32

const (
	StatusRegistering Status = iota
	StatusRunning
	StatusFinished
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusRegistering:
		return "registering"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusAborted:
		return "aborted"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Task is a log task: a bound variable list sampled at a fixed period
// once started.
type Task struct {
	server *Server

	mu      sync.Mutex
	names   []string
	readers []func() float64
	period  int
	limit   int

	status atomic.Int32
	taken  atomic.Uint64
	queue  *queue
}

// AddVar binds the published variable name to the task.
func (t *Task) AddVar(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status() != StatusRegistering {
		return ErrTaskStarted
	}
	if !t.server.active.Load() {
		return ErrUnavailable
	}
	read, ok := t.server.reader(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownVariable)
	}
	t.names = append(t.names, name)
	t.readers = append(t.readers, read)
	return nil
}

// VarList returns the bound variable names in binding order.
func (t *Task) VarList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.names)
}

// StartLog begins sampling every period control cycles. A positive limit
// finishes the task after that many samples; zero runs until the task is
// aborted or the server deactivates.
func (t *Task) StartLog(period, limit int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status() != StatusRegistering {
		return ErrTaskStarted
	}
	if len(t.readers) == 0 {
		return ErrNoVariables
	}
	if period < 1 {
		period = 1
	}
	t.period = period
	t.limit = limit
	if !t.status.CompareAndSwap(int32(StatusRegistering), int32(StatusRunning)) {
		return ErrTaskStarted
	}
	t.server.start(t)
	return nil
}

// GetData returns the oldest unread sample on channel, or nil when none
// is queued. Tasks carry a single channel, 0.
func (t *Task) GetData(channel int) *Sample {
	if channel != 0 {
		return nil
	}
	return t.queue.pop()
}

// IsDone reports whether the task has stopped sampling and every queued
// sample has been read.
func (t *Task) IsDone() bool {
	switch t.Status() {
	case StatusFinished, StatusAborted:
		return t.queue.len() == 0
	}
	return false
}

// AbortLog stops the task and discards unread samples.
func (t *Task) AbortLog() {
	if t.Status() == StatusRunning {
		t.server.finish(t, StatusAborted)
	}
	t.status.CompareAndSwap(int32(StatusRegistering), int32(StatusAborted))
	t.queue.clear()
}

// Status returns the task's lifecycle state.
func (t *Task) Status() Status { return Status(t.status.Load()) }

// Dropped returns how many samples were discarded because the client
// fell behind.
func (t *Task) Dropped() uint64 { return t.queue.droppedCount() }

// Notify receives a signal after new samples are queued.
func (t *Task) Notify() <-chan struct{} { return t.queue.notify }
