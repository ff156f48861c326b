// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable is recorded when the service does not
	// answer Query.
	ErrServiceUnavailable = errors.New("log service unavailable")

	// ErrRegistrationDisabled is returned once registration has failed
	// more times than the retry ceiling allows.
	ErrRegistrationDisabled = errors.New("log registration disabled")
)

// RegistrationState is the state of a Registrar.
type RegistrationState int

const (
	Querying RegistrationState = iota
	Registering
	Registered
	Disabled
)

func (s RegistrationState) String() string {
	switch s {
	case Querying:
		return "querying"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("registration(%d)", int(s))
}

// Registrar binds a variable list to a new task on the service, one
// attempt per call to Attempt. Registered and Disabled are terminal.
type Registrar struct {
	service   Service
	variables []string
	retries   *RetryCounter

	state RegistrationState
	task  Task
	err   error

	// onFailure is called after every counted failure.
	onFailure func(error)
}

// NewRegistrar returns a registrar in the Querying state.
func NewRegistrar(service Service, variables []string, retries *RetryCounter) *Registrar {
	return &Registrar{service: service, variables: variables, retries: retries}
}

// State returns the current state.
func (r *Registrar) State() RegistrationState { return r.state }

// Task returns the registered task, or nil before Registered.
func (r *Registrar) Task() Task { return r.task }

// Err returns the most recent failure.
func (r *Registrar) Err() error { return r.err }

// Attempt performs the work of the current state and returns the new
// state. Querying moves to Registering when the service answers;
// Registering creates a task and adds every variable. Any failure
// discards the task and returns to Querying, or to Disabled once the
// retry counter is exhausted.
func (r *Registrar) Attempt() RegistrationState {
	switch r.state {
	case Querying:
		if !r.service.Query() {
			r.fail(ErrServiceUnavailable)
			break
		}
		r.state = Registering
	case Registering:
		task, err := r.service.NewTask()
		if err != nil {
			r.fail(fmt.Errorf("creating log task: %w", err))
			break
		}
		for _, name := range r.variables {
			if err := task.AddVar(name); err != nil {
				task.AbortLog()
				r.fail(fmt.Errorf("adding log variable %q: %w", name, err))
				return r.state
			}
		}
		r.task = task
		r.state = Registered
		r.retries.Succeed()
	}
	return r.state
}

func (r *Registrar) fail(err error) {
	r.err = err
	if r.onFailure != nil {
		r.onFailure(err)
	}
	if r.retries.Fail() {
		r.err = fmt.Errorf("%w after %d attempts: %w", ErrRegistrationDisabled, r.retries.Failures(), err)
		r.state = Disabled
		return
	}
	r.state = Querying
}
