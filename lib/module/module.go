// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package module is the control-loop host: it owns the set of modules,
// activates and steps them once per control cycle, arbitrates exclusive
// grabs between them and carries the process-wide shutdown request.
//
// Modules never reach the host through a global. Every lifecycle call
// receives the Host explicitly.
package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNotFound is returned when a module lookup fails.
	ErrNotFound = errors.New("module not found")

	// ErrDuplicate is returned by Add when a module with the same name and
	// index is already registered.
	ErrDuplicate = errors.New("module already registered")
)

// Module is one unit of control logic. Init and Uninit bracket
// registration; Activate and Deactivate bracket the interval during
// which Step is called once per control cycle.
type Module interface {
	Name() string
	Index() int

	Init(host Host) error
	Uninit(host Host)
	Activate(host Host)
	Deactivate(host Host)
	Step(host Host)
}

// Host is what the control loop offers to modules.
type Host interface {
	// ReadTime returns mission time in seconds. Safe from any goroutine.
	ReadTime() float64

	// Logger returns the process logger.
	Logger() *slog.Logger

	// Context is cancelled when shutdown has been requested.
	Context() context.Context

	// Find looks up a registered module.
	Find(name string, index int) (Module, error)

	Add(m Module, class Class) error
	Remove(m Module) error
	Activate(m Module) error
	Deactivate(m Module) error

	// Grab acquires exclusive use of target for owner, activating target
	// if it is not already active. It fails if another module holds
	// target.
	Grab(target, owner Module) error

	// Release gives target back. A target that Grab activated is
	// deactivated once it is free.
	Release(target, owner Module) error

	// Holds reports whether owner currently holds target.
	Holds(target, owner Module) bool

	// RequestShutdown asks the control loop to exit after the current
	// cycle. Only the first request's reason is kept.
	RequestShutdown(reason string)
}

// Class orders modules within a control cycle. Lower classes step first.
type Class int

const (
	ClassSupervisor Class = iota
	ClassBehavior
	ClassActuation
	ClassTelemetry
)

func (c Class) String() string {
	switch c {
	case ClassSupervisor:
		return "supervisor"
	case ClassBehavior:
		return "behavior"
	case ClassActuation:
		return "actuation"
	case ClassTelemetry:
		return "telemetry"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Key is the arbitration key of m.
func Key(m Module) string { return fmt.Sprintf("%s/%d", m.Name(), m.Index()) }

// ID implements Name and Index for embedding.
type ID struct {
	name  string
	index int
}

// NewID returns an ID for the given name and index.
func NewID(name string, index int) ID { return ID{name: name, index: index} }

func (id ID) Name() string { return id.name }
func (id ID) Index() int   { return id.index }
