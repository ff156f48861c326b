// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package arbiter grants exclusive ownership of named resources.
//
// A resource is free or held by exactly one owner. Acquire either grants
// the resource or reports who holds it; Release gives it back and is a
// no-op for a resource that is already free. Nothing is queued: a caller
// that loses an Acquire decides for itself whether to retry.
package arbiter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrHeld is returned by Acquire when another owner holds the resource.
	ErrHeld = errors.New("resource held by another owner")

	// ErrNotOwner is returned by Release when the caller does not hold
	// the resource.
	ErrNotOwner = errors.New("resource not held by caller")
)

// Arbiter is the ownership table. The zero value is ready to use and it
// is safe for concurrent use.
type Arbiter struct {
	mu     sync.Mutex
	owners map[string]string
}

// Acquire grants resource to owner. Acquiring a resource the owner
// already holds succeeds without change.
func (a *Arbiter) Acquire(resource, owner string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, held := a.owners[resource]; held {
		if current == owner {
			return nil
		}
		return fmt.Errorf("acquire %s for %s: %w (owner %s)", resource, owner, ErrHeld, current)
	}
	if a.owners == nil {
		a.owners = make(map[string]string)
	}
	a.owners[resource] = owner
	return nil
}

// Release returns resource to the free state. Releasing a free resource
// succeeds. Releasing a resource held by someone else fails with
// ErrNotOwner and leaves the holder in place.
func (a *Arbiter) Release(resource, owner string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	current, held := a.owners[resource]
	if !held {
		return nil
	}
	if current != owner {
		return fmt.Errorf("release %s for %s: %w (owner %s)", resource, owner, ErrNotOwner, current)
	}
	delete(a.owners, resource)
	return nil
}

// Owner reports who holds resource.
func (a *Arbiter) Owner(resource string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, held := a.owners[resource]
	return owner, held
}

// Holds reports whether owner currently holds resource.
func (a *Arbiter) Holds(resource, owner string) bool {
	current, held := a.Owner(resource)
	return held && current == owner
}

// Held lists the resources owner holds, sorted.
func (a *Arbiter) Held(owner string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var resources []string
	for resource, current := range a.owners {
		if current == owner {
			resources = append(resources, resource)
		}
	}
	sort.Strings(resources)
	return resources
}

// ReleaseAll frees every resource owner holds and returns them.
func (a *Arbiter) ReleaseAll(owner string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var released []string
	for resource, current := range a.owners {
		if current == owner {
			delete(a.owners, resource)
			released = append(released, resource)
		}
	}
	sort.Strings(released)
	return released
}
