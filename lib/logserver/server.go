// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logserver is the in-process log service. Modules publish named
// variables; clients create log tasks bound to a subset of them; while a
// task runs, the server samples its variables on the control loop every
// period cycles and queues the rows for the client to collect.
//
// The server is itself a module stepped in the telemetry class, after
// every module whose state it samples. Variable readers run only on the
// control goroutine. Clients run on any goroutine.
package logserver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/strider-robotics/strider/lib/module"
)

// Name is the module name the server registers under.
const Name = "logserver"

// DefaultQueueCapacity bounds the samples queued per task when
// NewServer is given a non-positive capacity.
const DefaultQueueCapacity = 4096

var (
	// ErrUnavailable is returned when the server is not active or the
	// client has been closed.
	ErrUnavailable = errors.New("log server unavailable")

	// ErrUnknownVariable is returned by AddVar for a name nobody has
	// published.
	ErrUnknownVariable = errors.New("unknown log variable")

	// ErrDuplicateVariable is returned by Publish when the name is taken.
	ErrDuplicateVariable = errors.New("log variable already published")
)

// Sample is one row of a log: the control tick and mission time at which
// it was taken, and the task's variables in binding order.
type Sample struct {
	Tick   uint64
	Time   float64
	Values []float64
}

// Server is the log service module.
type Server struct {
	module.ID
	capacity int

	mu        sync.Mutex
	variables map[string]func() float64
	order     []string

	// running is the copy-on-write set of tasks sampled by Step.
	running atomic.Pointer[[]*Task]
	active  atomic.Bool
	ticks   uint64
}

// NewServer returns a server whose tasks queue at most capacity samples.
func NewServer(capacity int) *Server {
	s := &Server{
		ID:        module.NewID(Name, 0),
		capacity:  capacity,
		variables: make(map[string]func() float64),
	}
	s.running.Store(&[]*Task{})
	return s
}

// Publish makes a variable available for logging. read is called on the
// control goroutine each time a task samples it.
func (s *Server) Publish(name string, read func() float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.variables[name]; exists {
		return fmt.Errorf("%s: %w", name, ErrDuplicateVariable)
	}
	s.variables[name] = read
	s.order = append(s.order, name)
	return nil
}

// Unpublish withdraws a variable. Tasks already bound to it keep their
// reader.
func (s *Server) Unpublish(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.variables, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
}

// Variables lists the published variable names in publication order.
func (s *Server) Variables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *Server) reader(name string) (func() float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	read, ok := s.variables[name]
	return read, ok
}

// Client returns a new client connection to the server.
func (s *Server) Client() *Client { return &Client{server: s} }

// Lookup returns the server registered with host, or nil if there is
// none. Modules call it from Init to publish their variables.
func Lookup(host module.Host) *Server {
	m, err := host.Find(Name, 0)
	if err != nil {
		return nil
	}
	server, _ := m.(*Server)
	return server
}

func (s *Server) Init(module.Host) error { return nil }

// Uninit finishes every task.
func (s *Server) Uninit(module.Host) { s.finishAll() }

func (s *Server) Activate(module.Host) { s.active.Store(true) }

// Deactivate stops sampling and finishes every running task. Queued
// samples stay available to clients.
func (s *Server) Deactivate(module.Host) {
	s.active.Store(false)
	s.finishAll()
}

// Step samples every running task whose period divides the tick count.
func (s *Server) Step(host module.Host) {
	s.ticks++
	running := *s.running.Load()
	if len(running) == 0 {
		return
	}
	now := host.ReadTime()
	for _, task := range running {
		if s.ticks%uint64(task.period) != 0 {
			continue
		}
		values := make([]float64, len(task.readers))
		for i, read := range task.readers {
			values[i] = read()
		}
		task.queue.push(&Sample{Tick: s.ticks, Time: now, Values: values})
		if task.limit > 0 && task.taken.Add(1) >= uint64(task.limit) {
			s.finish(task, StatusFinished)
		}
	}
}

func (s *Server) start(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := append(slices.Clone(*s.running.Load()), task)
	s.running.Store(&running)
}

// finish moves task out of the running set into a terminal status.
func (s *Server) finish(task *Task, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := slices.DeleteFunc(slices.Clone(*s.running.Load()), func(t *Task) bool { return t == task })
	s.running.Store(&running)
	task.status.CompareAndSwap(int32(StatusRunning), int32(status))
}

func (s *Server) finishAll() {
	for _, task := range *s.running.Load() {
		s.finish(task, StatusFinished)
	}
}
