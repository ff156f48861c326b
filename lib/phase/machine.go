// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package phase

import (
	"fmt"
)

// State is the type of a machine's states: small comparable values with
// a printable name, usually an integer enum.
type State interface {
	comparable
	fmt.Stringer
}

// Handlers are the callbacks attached to one state. Any of them may be
// nil. Each receives the current mission time in seconds.
type Handlers struct {
	Entry  func(now float64)
	During func(now float64)
	Exit   func(now float64)
}

// Edge is a guarded transition between two states.
type Edge[S State] struct {
	From  S
	To    S
	Guard Guard
}

// Recorder receives every transition of the machines it is attached to,
// by state name. It is called on the control goroutine.
type Recorder interface {
	RecordTransition(machine, from, to string)
}

// Machine is a timed state machine. Build it with New, Handle and Edge,
// then Start it from the owning module's activation.
type Machine[S State] struct {
	name     string
	initial  S
	states   []S
	handlers map[S]Handlers
	edges    []Edge[S]

	observer func(from, to S, now float64)

	current S
	mark    float64
	started bool
}

// New returns a machine whose reset state is initial.
func New[S State](name string, initial S) *Machine[S] {
	m := &Machine[S]{
		name:     name,
		initial:  initial,
		handlers: make(map[S]Handlers),
		current:  initial,
	}
	m.declare(initial)
	return m
}

func (m *Machine[S]) declare(s S) {
	if _, known := m.handlers[s]; !known {
		m.handlers[s] = Handlers{}
		m.states = append(m.states, s)
	}
}

// Handle attaches handlers to s, replacing any previously set.
func (m *Machine[S]) Handle(s S, h Handlers) *Machine[S] {
	m.declare(s)
	m.handlers[s] = h
	return m
}

// Edge appends a transition. Edges out of one state are tried in the
// order they were added.
func (m *Machine[S]) Edge(from, to S, guard Guard) *Machine[S] {
	if guard == nil {
		guard = Never()
	}
	m.declare(from)
	m.declare(to)
	m.edges = append(m.edges, Edge[S]{From: from, To: to, Guard: guard})
	return m
}

// OnTransition registers fn to be called after every transition,
// including the reset performed by Start (from == to == initial).
func (m *Machine[S]) OnTransition(fn func(from, to S, now float64)) {
	m.observer = fn
}

// Name returns the machine's name.
func (m *Machine[S]) Name() string { return m.name }

// Current returns the current state.
func (m *Machine[S]) Current() S { return m.current }

// Mark returns the mission time at which the current state was entered.
func (m *Machine[S]) Mark() float64 { return m.mark }

// Elapsed returns the seconds spent in the current state as of now.
func (m *Machine[S]) Elapsed(now float64) float64 { return now - m.mark }

// Next is the pure transition function: the state that follows state
// after elapsed seconds in it, and whether that is a change.
func (m *Machine[S]) Next(state S, elapsed float64) (S, bool) {
	for _, edge := range m.edges {
		if edge.From == state && edge.Guard.Ready(elapsed) {
			return edge.To, true
		}
	}
	return state, false
}

// Start resets the machine to its initial state at now and runs the
// initial state's Entry. A running machine is stopped first.
func (m *Machine[S]) Start(now float64) {
	if m.started {
		m.Stop(now)
	}
	m.current = m.initial
	m.mark = now
	m.started = true
	if entry := m.handlers[m.current].Entry; entry != nil {
		entry(now)
	}
	if m.observer != nil {
		m.observer(m.initial, m.initial, now)
	}
}

// Stop runs the current state's Exit. Step is a no-op until the next
// Start.
func (m *Machine[S]) Stop(now float64) {
	if !m.started {
		return
	}
	m.started = false
	if exit := m.handlers[m.current].Exit; exit != nil {
		exit(now)
	}
}

// Step advances the machine by one control cycle and reports whether a
// transition happened.
func (m *Machine[S]) Step(now float64) bool {
	if !m.started {
		return false
	}
	next, changed := m.Next(m.current, now-m.mark)
	if !changed {
		if during := m.handlers[m.current].During; during != nil {
			during(now)
		}
		return false
	}

	previous := m.current
	if exit := m.handlers[previous].Exit; exit != nil {
		exit(now)
	}
	m.current = next
	m.mark = now
	if entry := m.handlers[next].Entry; entry != nil {
		entry(now)
	}
	if m.observer != nil {
		m.observer(previous, next, now)
	}
	return true
}
