// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor is the top-level module. It settles, engages the
// sit behavior, lets it run, then disengages and asks the control loop
// to shut down. Alongside the phases it owns the data logging pipeline
// and the absolute exit deadline.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/strider-robotics/strider/internal/logpipe"
	"github.com/strider-robotics/strider/internal/sit"
	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/config"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/logwriter"
	"github.com/strider-robotics/strider/lib/module"
	"github.com/strider-robotics/strider/lib/phase"
)

// Name is the module name of the supervisor.
const Name = "supervisor"

// LogDescription is written into the header of every data log.
const LogDescription = "Supervisor local data log"

// heartbeatInterval is the mission-time spacing of the debug heartbeat.
const heartbeatInterval = 1.0

// Phase is a supervisor phase.
type Phase int

const (
	Init Phase = iota
	Active
	Exit
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Active:
		return "active"
	case Exit:
		return "exit"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Options configures a Supervisor. Only Config is required.
type Options struct {
	Config *config.Config

	// Behavior is registered by Init and removed by Uninit. When nil,
	// the supervisor uses a behavior already registered under sit.Name.
	Behavior module.Module

	// Connect opens the log service connection. The default connects to
	// the registered log server.
	Connect func(host module.Host) (logpipe.Service, error)

	// NewWriter opens the data log. The default writes the configured
	// file with logwriter.
	NewWriter logpipe.WriterFactory

	Clock            clock.Clock
	Recorder         phase.Recorder
	PipelineObserver logpipe.Observer

	// LowerPriority runs the logging goroutine at a lowered priority.
	LowerPriority bool
}

// Supervisor is the top-level module.
type Supervisor struct {
	module.ID
	options Options
	config  *config.Config

	host     module.Host
	logger   *slog.Logger
	machine  *phase.Machine[Phase]
	behavior module.Module
	added    bool
	holding  bool
	pipeline *logpipe.Pipeline

	nextHeartbeat float64
	published     []string
}

// New returns a supervisor. An error means the configuration cannot be
// run at all.
func New(options Options) (*Supervisor, error) {
	if options.Config == nil {
		return nil, fmt.Errorf("supervisor: no configuration")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	s := &Supervisor{
		ID:      module.NewID(Name, 0),
		options: options,
		config:  options.Config,
		logger:  slog.Default(),
	}
	cfg := options.Config.Supervisor
	s.machine = phase.New(Name, Init).
		Handle(Init, phase.Handlers{}).
		Handle(Active, phase.Handlers{Entry: s.activeEntry, Exit: s.activeExit}).
		Handle(Exit, phase.Handlers{Entry: s.exitEntry, During: s.exitDuring}).
		Edge(Init, Active, phase.After(options.Config.Control.Settle)).
		Edge(Active, Exit, phase.Threshold(cfg.ActiveDuration))
	s.machine.OnTransition(s.transitioned)
	return s, nil
}

// Machine exposes the phase machine for inspection and graph export.
func (s *Supervisor) Machine() *phase.Machine[Phase] { return s.machine }

// Phase returns the current phase.
func (s *Supervisor) Phase() Phase { return s.machine.Current() }

// Pipeline returns the logging pipeline, or nil when logging is off.
func (s *Supervisor) Pipeline() *logpipe.Pipeline { return s.pipeline }

// Init registers and finds the behavior, publishes the supervisor's
// log variables and starts the logging pipeline. Missing collaborators
// are reported and leave the supervisor running without them.
func (s *Supervisor) Init(host module.Host) error {
	s.host = host
	s.logger = host.Logger().With("module", Name)

	if s.options.Behavior != nil {
		if err := host.Add(s.options.Behavior, module.ClassBehavior); err != nil {
			s.logger.Warn("could not register behavior", "behavior", module.Key(s.options.Behavior), "error", err)
		} else {
			s.added = true
		}
	}
	behavior, err := host.Find(sit.Name, 0)
	if err != nil {
		s.logger.Warn("behavior not found, supervisor will run without it", "behavior", sit.Name, "error", err)
	} else {
		s.behavior = behavior
	}

	if server := logserver.Lookup(host); server != nil {
		s.publish(server, "supervisor.time", host.ReadTime)
		s.publish(server, "supervisor.phase", func() float64 { return float64(s.machine.Current()) })
	}

	s.startPipeline(host)
	return nil
}

func (s *Supervisor) publish(server *logserver.Server, name string, read func() float64) {
	if err := server.Publish(name, read); err != nil {
		s.logger.Warn("could not publish log variable", "variable", name, "error", err)
		return
	}
	s.published = append(s.published, name)
}

func (s *Supervisor) startPipeline(host module.Host) {
	cfg := s.config.Supervisor.Log
	if !cfg.Enable {
		return
	}
	if len(cfg.Vars) == 0 {
		s.logger.Warn("data logging enabled without variables, not logging")
		return
	}

	connect := s.options.Connect
	if connect == nil {
		connect = connectLogServer
	}
	service, err := connect(host)
	if err != nil {
		s.logger.Warn("log service unavailable, not logging", "error", err)
		return
	}
	newWriter := s.options.NewWriter
	if newWriter == nil {
		newWriter = s.fileWriter
	}

	s.pipeline = logpipe.New(logpipe.Options{
		Service:       service,
		Variables:     cfg.Vars,
		NewWriter:     newWriter,
		ReadTime:      host.ReadTime,
		Start:         cfg.Start,
		Period:        cfg.Period,
		MaxSamples:    cfg.MaxSamples,
		Clock:         s.options.Clock,
		Logger:        s.logger.With("component", "logpipe"),
		Observer:      s.options.PipelineObserver,
		LowerPriority: s.options.LowerPriority,
	})
	s.pipeline.Start(host.Context())
	s.logger.Info("data logging armed", "file", cfg.FileName, "format", cfg.FileFormat, "start", cfg.Start, "variables", len(cfg.Vars))
}

func connectLogServer(host module.Host) (logpipe.Service, error) {
	server := logserver.Lookup(host)
	if server == nil {
		return nil, fmt.Errorf("%s module not registered: %w", logserver.Name, module.ErrNotFound)
	}
	return logpipe.Connect(server.Client()), nil
}

// fileWriter opens the configured log file for the registered
// variables.
func (s *Supervisor) fileWriter(variables []string) (logwriter.Writer, error) {
	cfg := s.config.Supervisor.Log
	format, _ := logwriter.ParseFormat(cfg.FileFormat)
	compression, err := logwriter.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.FileName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	return logwriter.New(logwriter.Options{
		Path:        cfg.FileName,
		Format:      format,
		Compression: compression,
		Variables:   variables,
		Description: LogDescription,
		RunID:       s.config.RunID,
		Created:     s.options.Clock.Now().UTC().Truncate(time.Millisecond),
	})
}

// Uninit stops the logging pipeline if Deactivate has not, waiting for
// its teardown, and removes the behavior it registered.
func (s *Supervisor) Uninit(host module.Host) {
	if s.pipeline != nil {
		s.pipeline.Stop()
	}
	if server := logserver.Lookup(host); server != nil {
		for _, name := range s.published {
			server.Unpublish(name)
		}
	}
	s.published = nil
	if s.added {
		if err := host.Remove(s.options.Behavior); err != nil {
			s.logger.Warn("could not remove behavior", "error", err)
		}
		s.added = false
	}
}

// Activate starts the phase sequence.
func (s *Supervisor) Activate(host module.Host) {
	now := host.ReadTime()
	s.nextHeartbeat = now
	s.machine.Start(now)
}

// Deactivate stops the phase sequence, releasing the behavior if the
// current phase holds it, and finalizes the data log. Logging does not
// resume on a later Activate.
func (s *Supervisor) Deactivate(host module.Host) {
	s.machine.Stop(host.ReadTime())
	if s.pipeline != nil {
		s.pipeline.Stop()
	}
}

// Step enforces the exit deadline, raises the logging barrier once the
// start time is reached, then advances the phases.
func (s *Supervisor) Step(host module.Host) {
	now := host.ReadTime()

	if exit := s.config.Supervisor.ExitTime; exit > 0 && now >= exit {
		host.RequestShutdown(fmt.Sprintf("exit time %gs reached", exit))
		return
	}
	if s.pipeline != nil && now >= s.config.Supervisor.Log.Start {
		if s.pipeline.Barrier().Raise() {
			s.logger.Info("logging start time reached", "t", now)
		}
	}
	if now >= s.nextHeartbeat {
		s.logger.Debug("heartbeat", "t", now, "phase", s.machine.Current())
		for s.nextHeartbeat <= now {
			s.nextHeartbeat += heartbeatInterval
		}
	}

	s.machine.Step(now)
}

func (s *Supervisor) transitioned(from, to Phase, now float64) {
	if from == to {
		s.logger.Info("supervisor started", "phase", to, "t", now)
		return
	}
	s.logger.Info("supervisor phase", "from", from, "to", to, "t", now)
	if s.options.Recorder != nil {
		s.options.Recorder.RecordTransition(Name, from.String(), to.String())
	}
}

func (s *Supervisor) activeEntry(float64) {
	if s.behavior == nil {
		return
	}
	if err := s.host.Grab(s.behavior, s); err != nil {
		s.logger.Warn("could not engage behavior", "behavior", module.Key(s.behavior), "error", err)
		return
	}
	s.holding = true
}

func (s *Supervisor) activeExit(float64) {
	if !s.holding {
		return
	}
	if err := s.host.Release(s.behavior, s); err != nil {
		s.logger.Warn("could not release behavior", "behavior", module.Key(s.behavior), "error", err)
	}
	s.holding = false
}

func (s *Supervisor) exitEntry(float64) {
	s.logger.Info("disengaged, shutting down after grace period", "grace", s.config.Supervisor.ExitGrace)
}

func (s *Supervisor) exitDuring(now float64) {
	if s.machine.Elapsed(now) > s.config.Supervisor.ExitGrace {
		s.host.RequestShutdown("supervisor exit phase complete")
	}
}
