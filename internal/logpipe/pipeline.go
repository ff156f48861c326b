// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/logwriter"
	"github.com/strider-robotics/strider/lib/sched"
)

// DefaultPollInterval is the pause between registration attempts and
// between drains.
const DefaultPollInterval = 10 * time.Millisecond

// LoggingNice is the nice value of the pipeline thread when Options
// asks for a lowered priority.
const LoggingNice = 10

// State is the externally visible stage of a pipeline.
type State int32

const (
	StateIdle State = iota
	StateRegistering
	StateWaiting
	StateLogging
	StateComplete
	StateDisabled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StateWaiting:
		return "waiting"
	case StateLogging:
		return "logging"
	case StateComplete:
		return "complete"
	case StateDisabled:
		return "disabled"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Observer receives pipeline events. Methods are called on the pipeline
// goroutine and must not block.
type Observer interface {
	SamplesWritten(n int)
	RegistrationFailed()
	PipelineState(state State)
}

// WriterFactory opens the log file for the registered variables.
type WriterFactory func(variables []string) (logwriter.Writer, error)

// Options configures a Pipeline. Service, Variables, NewWriter and
// ReadTime are required.
type Options struct {
	Service   Service
	Variables []string
	NewWriter WriterFactory

	// ReadTime returns mission time in seconds.
	ReadTime func() float64

	// Start is the mission time at which logging begins.
	Start float64

	// Period samples every Period control cycles.
	Period int

	// MaxSamples ends the task after that many samples; zero is
	// unbounded.
	MaxSamples int

	RetryCeiling int
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
	Observer     Observer

	// LowerPriority runs the pipeline goroutine on its own OS thread at
	// nice LoggingNice.
	LowerPriority bool
}

// Pipeline is the logging goroutine and its handle.
type Pipeline struct {
	options Options
	logger  *slog.Logger
	barrier *Barrier

	state    atomic.Int32
	disabled atomic.Bool
	written  atomic.Uint64
	started  atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the pipeline goroutine.
	task   Task
	writer logwriter.Writer
}

// New returns a pipeline that has not started. An empty variable list
// yields a pipeline that is disabled from the outset.
func New(options Options) *Pipeline {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.Period < 1 {
		options.Period = 1
	}
	p := &Pipeline{
		options: options,
		logger:  options.Logger,
		barrier: NewBarrier(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if len(options.Variables) == 0 {
		p.disabled.Store(true)
		p.state.Store(int32(StateDisabled))
	}
	return p
}

// Barrier returns the start barrier the control loop raises.
func (p *Pipeline) Barrier() *Barrier { return p.barrier }

// Disabled reports whether logging has been given up for this process.
func (p *Pipeline) Disabled() bool { return p.disabled.Load() }

// State returns the current stage.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Written returns the number of samples appended to the writer.
func (p *Pipeline) Written() uint64 { return p.written.Load() }

// Done is closed when the pipeline goroutine has finished teardown. It
// is closed immediately for a pipeline that never runs.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Start launches the pipeline goroutine. Cancelling ctx has the same
// effect as Stop. Only the first call starts anything; a disabled
// pipeline never starts.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	if p.Disabled() {
		close(p.done)
		return
	}
	go p.run(ctx)
}

// Stop asks the goroutine to tear down and waits until it has. Safe to
// call more than once and before Start.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.CompareAndSwap(false, true) {
		p.setState(StateStopped)
		close(p.done)
		return
	}
	<-p.done
}

func (p *Pipeline) setState(state State) {
	p.state.Store(int32(state))
	if p.options.Observer != nil {
		p.options.Observer.PipelineState(state)
	}
}

func (p *Pipeline) disable(reason string, err error) {
	p.logger.Warn(reason+", logging disabled", "error", err)
	p.disabled.Store(true)
	p.setState(StateDisabled)
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	if p.options.LowerPriority {
		if err := sched.LowerThreadPriority(LoggingNice); err != nil {
			p.logger.Debug("could not lower logging thread priority", "error", err)
		}
	}
	defer p.teardown()

	if !p.register(ctx) {
		return
	}

	writer, err := p.options.NewWriter(p.task.VarList())
	if err != nil {
		p.task.AbortLog()
		p.task = nil
		p.disable("opening log writer failed", err)
		return
	}
	p.writer = writer

	if !p.gate(ctx) {
		return
	}

	if err := p.task.StartLog(p.options.Period, p.options.MaxSamples); err != nil {
		p.disable("starting log task failed", err)
		return
	}
	p.setState(StateLogging)
	p.logger.Info("logging started",
		"t", p.options.ReadTime(),
		"variables", len(p.options.Variables),
		"period", p.options.Period,
	)

	for {
		if !p.drain() {
			return
		}
		if p.task.IsDone() {
			p.complete()
			p.idle(ctx)
			return
		}
		if !p.sleep(ctx) {
			return
		}
	}
}

// register runs the registrar until it reaches a terminal state. It
// returns false if logging was disabled or the pipeline was stopped.
func (p *Pipeline) register(ctx context.Context) bool {
	p.setState(StateRegistering)
	registrar := NewRegistrar(p.options.Service, p.options.Variables, NewRetryCounter(p.options.RetryCeiling))
	registrar.onFailure = func(err error) {
		p.logger.Debug("log registration attempt failed", "error", err)
		if p.options.Observer != nil {
			p.options.Observer.RegistrationFailed()
		}
	}
	for {
		switch registrar.Attempt() {
		case Registered:
			p.task = registrar.Task()
			return true
		case Disabled:
			p.disable("log registration failed", registrar.Err())
			return false
		case Registering:
			// Query succeeded; register without waiting.
			continue
		}
		if !p.sleep(ctx) {
			return false
		}
	}
}

// gate waits until mission time reaches the start time. A start time
// already reached passes without waiting on the barrier.
func (p *Pipeline) gate(ctx context.Context) bool {
	if p.options.ReadTime() >= p.options.Start {
		return true
	}
	p.setState(StateWaiting)
	select {
	case <-p.barrier.Done():
		return true
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// drain appends every queued sample to the writer. A write failure
// aborts the task and disables logging.
func (p *Pipeline) drain() bool {
	n := 0
	for sample := p.task.GetData(0); sample != nil; sample = p.task.GetData(0) {
		if err := p.writer.AppendLine(sample); err != nil {
			p.task.AbortLog()
			p.task = nil
			p.closeWriter()
			p.disable("writing log sample failed", err)
			return false
		}
		n++
	}
	if n > 0 {
		p.written.Add(uint64(n))
		if p.options.Observer != nil {
			p.options.Observer.SamplesWritten(n)
		}
	}
	return true
}

// complete releases the finished task and finalizes the file.
func (p *Pipeline) complete() {
	p.task = nil
	p.closeWriter()
	p.setState(StateComplete)
	p.logger.Info("logging complete", "samples", p.Written(), "t", p.options.ReadTime())
}

func (p *Pipeline) idle(ctx context.Context) {
	select {
	case <-p.stop:
	case <-ctx.Done():
	}
}

// sleep waits one poll interval. It returns false if the pipeline was
// stopped in the meantime.
func (p *Pipeline) sleep(ctx context.Context) bool {
	select {
	case <-p.options.Clock.After(p.options.PollInterval):
		return true
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) closeWriter() {
	if p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Warn("closing log writer failed", "error", err)
	}
	p.writer = nil
}

// teardown releases whatever the goroutine still owns. It runs on
// every exit path. Samples already queued are written before the task
// is aborted.
func (p *Pipeline) teardown() {
	if p.task != nil && p.writer != nil {
		p.drain()
	}
	if p.task != nil {
		p.task.AbortLog()
		p.task = nil
		p.logger.Info("log task aborted", "samples", p.Written())
	}
	p.closeWriter()
	if err := p.options.Service.Close(); err != nil {
		p.logger.Warn("closing log service connection failed", "error", err)
	}
	if !p.Disabled() {
		p.setState(StateStopped)
	}
}
