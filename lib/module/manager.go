// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/strider-robotics/strider/lib/arbiter"
	"github.com/strider-robotics/strider/lib/clock"
)

// DefaultStepPeriod is the control period used when Options leaves it
// unset.
const DefaultStepPeriod = 2 * time.Millisecond

// ErrShutdown is the cancellation cause recorded by RequestShutdown.
var ErrShutdown = errors.New("shutdown requested")

// Observer receives per-cycle timing from the control loop. It is called
// on the control goroutine and must not block.
type Observer interface {
	ControlStep(duration time.Duration, overrun bool)
}

// Options configures a Manager.
type Options struct {
	Clock      clock.Clock
	Logger     *slog.Logger
	StepPeriod time.Duration
	Observer   Observer
}

// Info describes a registered module.
type Info struct {
	Name   string
	Index  int
	Class  Class
	Active bool
	Owner  string // key of the grabbing module, empty when free

	// Holding lists the keys of the modules this one has grabbed.
	Holding []string
}

type entry struct {
	module Module
	class  Class
	active bool

	// grabbed is set when Grab activated the module; Release then
	// deactivates it again.
	grabbed bool
}

// Manager implements Host and runs the control loop.
//
// Registration, activation and stepping happen on one goroutine: the
// caller of Run, or the setup code before and after it. ReadTime,
// Context and RequestShutdown are safe from any goroutine.
type Manager struct {
	clock    clock.Clock
	mission  *clock.Mission
	logger   *slog.Logger
	period   time.Duration
	observer Observer

	arbiter arbiter.Arbiter
	entries []*entry
	ticks   uint64

	ctx          context.Context
	cancel       context.CancelCauseFunc
	shutdownOnce sync.Once
}

// NewManager returns a Manager whose context derives from ctx. Mission
// time zero is the moment NewManager is called.
func NewManager(ctx context.Context, options Options) *Manager {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.StepPeriod <= 0 {
		options.StepPeriod = DefaultStepPeriod
	}
	ctx, cancel := context.WithCancelCause(ctx)
	return &Manager{
		clock:    options.Clock,
		mission:  clock.NewMission(options.Clock),
		logger:   options.Logger,
		period:   options.StepPeriod,
		observer: options.Observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) ReadTime() float64 { return m.mission.ReadTime() }

func (m *Manager) Logger() *slog.Logger { return m.logger }

func (m *Manager) Context() context.Context { return m.ctx }

// StepPeriod returns the control period.
func (m *Manager) StepPeriod() time.Duration { return m.period }

// Ticks returns the number of completed control cycles.
func (m *Manager) Ticks() uint64 { return m.ticks }

// ShutdownCause returns the reason passed to the first RequestShutdown,
// wrapped in ErrShutdown, or nil.
func (m *Manager) ShutdownCause() error {
	if m.ctx.Err() == nil {
		return nil
	}
	return context.Cause(m.ctx)
}

func (m *Manager) Holds(target, owner Module) bool {
	return m.arbiter.Holds(Key(target), Key(owner))
}

// RequestShutdown cancels the manager's context. Later requests are
// ignored.
func (m *Manager) RequestShutdown(reason string) {
	m.shutdownOnce.Do(func() {
		m.logger.Info("shutdown requested", "reason", reason, "t", m.ReadTime())
		m.cancel(fmt.Errorf("%w: %s", ErrShutdown, reason))
	})
}

func (m *Manager) lookup(name string, index int) *entry {
	for _, e := range m.entries {
		if e.module.Name() == name && e.module.Index() == index {
			return e
		}
	}
	return nil
}

func (m *Manager) entryOf(mod Module) (*entry, error) {
	e := m.lookup(mod.Name(), mod.Index())
	if e == nil || e.module != mod {
		return nil, fmt.Errorf("%s: %w", Key(mod), ErrNotFound)
	}
	return e, nil
}

// Find returns the module registered under name and index.
func (m *Manager) Find(name string, index int) (Module, error) {
	e := m.lookup(name, index)
	if e == nil {
		return nil, fmt.Errorf("%s/%d: %w", name, index, ErrNotFound)
	}
	return e.module, nil
}

// Add registers mod in class and calls its Init. A module whose Init
// fails is not registered.
func (m *Manager) Add(mod Module, class Class) error {
	if m.lookup(mod.Name(), mod.Index()) != nil {
		return fmt.Errorf("%s: %w", Key(mod), ErrDuplicate)
	}
	// Register before Init so that Init can find and grab peers, and
	// so that modules added from inside Init land after their parent.
	e := &entry{module: mod, class: class}
	m.entries = append(m.entries, e)
	m.sort()
	if err := mod.Init(m); err != nil {
		m.entries = slices.DeleteFunc(m.entries, func(x *entry) bool { return x == e })
		return fmt.Errorf("initializing %s: %w", Key(mod), err)
	}
	return nil
}

func (m *Manager) sort() {
	slices.SortStableFunc(m.entries, func(a, b *entry) int { return int(a.class) - int(b.class) })
}

// Remove deactivates mod if needed, calls its Uninit and unregisters it.
// Grabs mod holds are released, and a grab on mod itself is dropped, so
// a module later added under the same name starts free.
func (m *Manager) Remove(mod Module) error {
	e, err := m.entryOf(mod)
	if err != nil {
		return err
	}
	if e.active {
		m.deactivate(e)
	}
	mod.Uninit(m)
	m.releaseGrabs(e, "releasing grab left by removed module")

	key := Key(mod)
	if owner, held := m.arbiter.Owner(key); held {
		m.logger.Warn("removing module still held by another", "module", key, "owner", owner)
		_ = m.arbiter.Release(key, owner)
	}
	m.entries = slices.DeleteFunc(m.entries, func(x *entry) bool { return x == e })
	return nil
}

// Activate starts stepping mod. Activating an active module is a no-op.
func (m *Manager) Activate(mod Module) error {
	e, err := m.entryOf(mod)
	if err != nil {
		return err
	}
	m.activate(e)
	return nil
}

func (m *Manager) activate(e *entry) {
	if e.active {
		return
	}
	e.active = true
	e.module.Activate(m)
}

// Deactivate stops stepping mod and releases anything it still holds.
func (m *Manager) Deactivate(mod Module) error {
	e, err := m.entryOf(mod)
	if err != nil {
		return err
	}
	m.deactivate(e)
	return nil
}

func (m *Manager) deactivate(e *entry) {
	if !e.active {
		return
	}
	e.active = false
	e.grabbed = false
	e.module.Deactivate(m)

	// Grabs the module forgot to release in Deactivate.
	m.releaseGrabs(e, "releasing grab left by deactivated module")
}

// releaseGrabs frees everything e holds and deactivates the targets
// that were only active because e grabbed them.
func (m *Manager) releaseGrabs(e *entry, message string) {
	owner := Key(e.module)
	for _, resource := range m.arbiter.ReleaseAll(owner) {
		m.logger.Warn(message, "module", owner, "target", resource)
		if target := m.byKey(resource); target != nil && target.grabbed {
			m.deactivate(target)
		}
	}
}

func (m *Manager) byKey(key string) *entry {
	for _, e := range m.entries {
		if Key(e.module) == key {
			return e
		}
	}
	return nil
}

// Grab acquires target for owner and activates target if needed.
func (m *Manager) Grab(target, owner Module) error {
	e, err := m.entryOf(target)
	if err != nil {
		return err
	}
	if err := m.arbiter.Acquire(Key(target), Key(owner)); err != nil {
		return err
	}
	if !e.active {
		e.grabbed = true
		m.activate(e)
	}
	return nil
}

// Release gives target back. Releasing a target owner does not hold is
// a no-op when the target is free and an error when someone else holds
// it.
func (m *Manager) Release(target, owner Module) error {
	e, err := m.entryOf(target)
	if err != nil {
		return err
	}
	if err := m.arbiter.Release(Key(target), Key(owner)); err != nil {
		return err
	}
	if _, held := m.arbiter.Owner(Key(target)); !held && e.grabbed {
		m.deactivate(e)
	}
	return nil
}

// Modules lists the registered modules in step order.
func (m *Manager) Modules() []Info {
	infos := make([]Info, 0, len(m.entries))
	for _, e := range m.entries {
		owner, _ := m.arbiter.Owner(Key(e.module))
		infos = append(infos, Info{
			Name:    e.module.Name(),
			Index:   e.module.Index(),
			Class:   e.class,
			Active:  e.active,
			Owner:   owner,
			Holding: m.arbiter.Held(Key(e.module)),
		})
	}
	return infos
}

// Step runs one control cycle: every active module's Step, in class
// order. Modules activated during the cycle start stepping in the next
// one.
func (m *Manager) Step() {
	active := make([]Module, 0, len(m.entries))
	for _, e := range m.entries {
		if e.active {
			active = append(active, e.module)
		}
	}
	for _, mod := range active {
		if e := m.lookup(mod.Name(), mod.Index()); e != nil && e.active {
			mod.Step(m)
		}
	}
	m.ticks++
}

// Run steps the modules once per period until shutdown is requested or
// ctx is done. A cycle that takes longer than the period counts as an
// overrun; missed ticks are skipped, not replayed.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.period)
	defer ticker.Stop()

	m.logger.Info("entering control loop", "period", m.period)
	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("control loop exited", "t", m.ReadTime(), "cause", context.Cause(m.ctx))
			return nil
		case <-ctx.Done():
			m.RequestShutdown(ctx.Err().Error())
			return nil
		case <-ticker.C:
			start := m.clock.Now()
			m.Step()
			duration := m.clock.Now().Sub(start)
			if m.observer != nil {
				m.observer.ControlStep(duration, duration > m.period)
			}
		}
	}
}
