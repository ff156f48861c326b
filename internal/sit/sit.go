// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sit is the sitting behavior: hold the standing foot positions,
// move every joint along a smooth profile to the sitting posture, then
// hold that posture.
//
// The behavior grabs the four leg modules when it is activated and
// commands only the legs it actually holds.
package sit

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/config"
	"github.com/strider-robotics/strider/lib/kinematics"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/module"
	"github.com/strider-robotics/strider/lib/phase"
	"github.com/strider-robotics/strider/lib/profile"
)

// Name is the module name of the behavior.
const Name = "sit"

// LegModule is the module name of the legs the behavior grabs, indexed
// by leg number.
const LegModule = "leg"

// Phase is a phase of the behavior.
type Phase int

const (
	Wait Phase = iota
	Transition
	Hold
	Done
)

func (p Phase) String() string {
	switch p {
	case Wait:
		return "wait"
	case Transition:
		return "transition"
	case Hold:
		return "hold"
	case Done:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Behavior is the sit module.
type Behavior struct {
	module.ID
	config     config.SitConfig
	kinematics kinematics.Kinematics
	recorder   phase.Recorder

	machine *phase.Machine[Phase]
	logger  *slog.Logger
	warn    *rate.Limiter

	host    module.Host
	legs    [kinematics.LegCount]module.Module
	targets [kinematics.LegCount]kinematics.Leg
	sensors [kinematics.LegCount]kinematics.JointSensor
	held    [kinematics.LegCount]bool

	foot     [kinematics.LegCount]kinematics.Vec3
	posture  [kinematics.LegCount]kinematics.Vec3
	command  [kinematics.LegCount]kinematics.Vec3
	profiles [kinematics.LegCount][kinematics.JointCount]profile.Profiler

	// holdFoot marks legs that could not be moved into joint space; they
	// keep their standing foot position until the behavior ends.
	holdFoot [kinematics.LegCount]bool

	published []string
}

// New returns the behavior. An invalid transition guard expression is
// reported here, before the module is registered. recorder may be nil.
func New(cfg config.SitConfig, model kinematics.Kinematics, recorder phase.Recorder) (*Behavior, error) {
	transition := phase.After(cfg.Transition)
	if cfg.TransitionGuard != "" {
		guard, err := phase.Expression(cfg.TransitionGuard)
		if err != nil {
			return nil, fmt.Errorf("sit.transition_guard: %w", err)
		}
		transition = guard
	}

	b := &Behavior{
		ID:         module.NewID(Name, 0),
		config:     cfg,
		kinematics: model,
		recorder:   recorder,
		warn:       rate.NewLimiter(rate.Every(time.Second), 1),
		logger:     slog.Default(),
	}
	for leg := range kinematics.LegCount {
		b.posture[leg] = Posture(cfg, leg)
	}

	b.machine = phase.New(Name, Wait).
		Handle(Wait, phase.Handlers{Entry: b.waitEntry, During: b.waitDuring}).
		Handle(Transition, phase.Handlers{Entry: b.transitionEntry, During: b.transitionDuring}).
		Handle(Hold, phase.Handlers{Entry: b.holdEntry, During: b.holdDuring}).
		Handle(Done, phase.Handlers{}).
		Edge(Wait, Transition, phase.After(cfg.Wait)).
		Edge(Transition, Hold, transition).
		Edge(Hold, Done, phase.Threshold(cfg.Hold))
	b.machine.OnTransition(b.transitioned)
	return b, nil
}

// Posture returns the sitting joint angles of leg. The abduction angle
// is mirrored between even and odd legs unless the policy is uniform.
func Posture(cfg config.SitConfig, leg int) kinematics.Vec3 {
	posture := kinematics.Vec3(cfg.Posture)
	if cfg.Abduction != config.AbductionUniform {
		posture[0] *= kinematics.Mirror(leg)
	}
	return posture
}

// Machine exposes the phase machine for inspection and graph export.
func (b *Behavior) Machine() *phase.Machine[Phase] { return b.machine }

// Phase returns the current phase.
func (b *Behavior) Phase() Phase { return b.machine.Current() }

// Holds reports whether the behavior holds leg and may command it.
func (b *Behavior) Holds(leg int) bool {
	return b.held[leg] && b.host != nil && b.host.Holds(b.legs[leg], b)
}

// HoldsFoot reports whether leg stays at its standing foot position
// because its joint angles could not be determined.
func (b *Behavior) HoldsFoot(leg int) bool { return b.holdFoot[leg] }

// Command returns the joint angles last commanded to leg. It is zero
// until the transition phase.
func (b *Behavior) Command(leg int) kinematics.Vec3 { return b.command[leg] }

// Init looks up the legs and publishes the behavior's log variables.
// Missing legs are reported and left uncommanded.
func (b *Behavior) Init(host module.Host) error {
	b.logger = host.Logger().With("module", Name)
	for leg := range kinematics.LegCount {
		m, err := host.Find(LegModule, leg)
		if err != nil {
			b.logger.Warn("leg not found, behavior will run without it", "leg", leg, "error", err)
			continue
		}
		target, ok := m.(kinematics.Leg)
		if !ok {
			b.logger.Warn("module does not accept leg setpoints", "leg", leg, "type", fmt.Sprintf("%T", m))
			continue
		}
		b.legs[leg] = m
		b.targets[leg] = target
		if sensor, ok := m.(kinematics.JointSensor); ok {
			b.sensors[leg] = sensor
		}
	}

	server := logserver.Lookup(host)
	if server == nil {
		return nil
	}
	publish := func(name string, read func() float64) error {
		if err := server.Publish(name, read); err != nil {
			return err
		}
		b.published = append(b.published, name)
		return nil
	}
	if err := publish("sit.phase", func() float64 { return float64(b.machine.Current()) }); err != nil {
		return err
	}
	for leg := range kinematics.LegCount {
		for joint := range kinematics.JointCount {
			name := fmt.Sprintf("sit.leg%d.q%d", leg, joint)
			if err := publish(name, func() float64 { return b.command[leg][joint] }); err != nil {
				return err
			}
		}
	}
	return nil
}

// Uninit withdraws the published variables.
func (b *Behavior) Uninit(host module.Host) {
	if server := logserver.Lookup(host); server != nil {
		for _, name := range b.published {
			server.Unpublish(name)
		}
	}
	b.published = nil
}

// Activate grabs the legs and restarts the phase sequence.
func (b *Behavior) Activate(host module.Host) {
	b.host = host
	for leg, m := range b.legs {
		if m == nil {
			continue
		}
		if err := host.Grab(m, b); err != nil {
			b.logger.Warn("could not grab leg", "leg", leg, "error", err)
			continue
		}
		b.held[leg] = true
	}
	b.command = [kinematics.LegCount]kinematics.Vec3{}
	b.holdFoot = [kinematics.LegCount]bool{}
	b.machine.Start(host.ReadTime())
}

// Deactivate stops the machine and releases the legs.
func (b *Behavior) Deactivate(host module.Host) {
	b.machine.Stop(host.ReadTime())
	for leg, m := range b.legs {
		if !b.held[leg] {
			continue
		}
		b.held[leg] = false
		if !host.Holds(m, b) {
			continue
		}
		if err := host.Release(m, b); err != nil {
			b.logger.Warn("could not release leg", "leg", leg, "error", err)
		}
	}
}

// Step advances the phase machine.
func (b *Behavior) Step(host module.Host) {
	b.machine.Step(host.ReadTime())
}

func (b *Behavior) transitioned(from, to Phase, now float64) {
	if from == to {
		b.logger.Info("sit started", "phase", to, "t", now)
		return
	}
	b.logger.Info("sit phase", "from", from, "to", to, "t", now)
	if b.recorder != nil {
		b.recorder.RecordTransition(Name, from.String(), to.String())
	}
}

func (b *Behavior) waitEntry(float64) {
	origin := b.config.Origin
	for leg := range kinematics.LegCount {
		offset := kinematics.Vec3{origin[0], origin[1] * kinematics.Mirror(leg), origin[2]}
		b.foot[leg] = b.kinematics.HipPosition(leg).Add(offset)
	}
}

func (b *Behavior) waitDuring(float64) {
	for leg, target := range b.targets {
		if b.Holds(leg) {
			target.SetTargetPosition(b.foot[leg], kinematics.Vec3{})
		}
	}
}

// transitionEntry converts the last commanded foot positions to joint
// angles and seeds one profile per joint from there to the posture.
func (b *Behavior) transitionEntry(now float64) {
	for leg := range kinematics.LegCount {
		start, ok := b.startAngles(leg, now)
		if !ok {
			b.holdFoot[leg] = true
			continue
		}
		for joint := range kinematics.JointCount {
			p := &b.profiles[leg][joint]
			p.Clear()
			// Times are relative to phase entry and ascending, so Add
			// cannot fail.
			_ = p.Add(0, start[joint], 0)
			_ = p.Add(b.config.Transition, b.posture[leg][joint], 0)
		}
	}
}

// startAngles solves the joint angles of the commanded foot position.
// When the solver fails, the leg starts from its measured angles if it
// reports them; otherwise ok is false.
func (b *Behavior) startAngles(leg int, now float64) (angles kinematics.Vec3, ok bool) {
	angles, ok = b.kinematics.Inverse(leg, b.foot[leg])
	if ok {
		return angles, true
	}
	if sensor := b.sensors[leg]; sensor != nil {
		angles = sensor.Angles()
		b.warnSolver(now, "inverse kinematics failed, starting from measured angles", "leg", leg, "angles", angles)
		return angles, true
	}
	b.warnSolver(now, "inverse kinematics failed, holding foot position", "leg", leg)
	return kinematics.Vec3{}, false
}

// warnSolver logs a solver failure at most once per second of mission
// time.
func (b *Behavior) warnSolver(now float64, message string, args ...any) {
	at := time.Unix(0, 0).Add(clock.Seconds(now))
	if b.warn.AllowN(at, 1) {
		b.logger.Warn(message, append(args, "t", now)...)
	}
}

func (b *Behavior) transitionDuring(now float64) {
	elapsed := b.machine.Elapsed(now)
	for leg, target := range b.targets {
		if b.holdFoot[leg] {
			if b.Holds(leg) {
				target.SetTargetPosition(b.foot[leg], kinematics.Vec3{})
			}
			continue
		}
		var angles, rates kinematics.Vec3
		for joint := range kinematics.JointCount {
			angles[joint], rates[joint] = b.profiles[leg][joint].Evaluate(elapsed)
		}
		b.command[leg] = angles
		if b.Holds(leg) {
			target.SetTargetAngles(angles, rates)
		}
	}
}

func (b *Behavior) holdEntry(float64) {
	for leg := range kinematics.LegCount {
		if !b.holdFoot[leg] {
			b.command[leg] = b.posture[leg]
		}
	}
}

func (b *Behavior) holdDuring(float64) {
	for leg, target := range b.targets {
		switch {
		case !b.Holds(leg):
		case b.holdFoot[leg]:
			target.SetTargetPosition(b.foot[leg], kinematics.Vec3{})
		default:
			target.SetTargetAngles(b.posture[leg], kinematics.Vec3{})
		}
	}
}
