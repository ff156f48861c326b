// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"fmt"
	"log/slog"

	"github.com/strider-robotics/strider/lib/kinematics"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/module"
)

// LegName is the module name of every simulated leg; the index is the
// leg number.
const LegName = "leg"

// Mode is the kind of setpoint a leg is tracking.
type Mode int

const (
	ModeIdle Mode = iota
	ModePosition
	ModeAngles
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePosition:
		return "position"
	case ModeAngles:
		return "angles"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Leg is one simulated leg. It implements module.Module and
// kinematics.Leg. Setpoints are latched by the setters and applied on
// the leg's next Step, after every behavior has stepped; the joints
// reach the setpoint in that step.
type Leg struct {
	module.ID
	body   *Body
	logger *slog.Logger

	mode     Mode
	position kinematics.Vec3
	velocity kinematics.Vec3
	target   kinematics.Vec3
	rates    kinematics.Vec3

	angles      kinematics.Vec3
	jointRates  kinematics.Vec3
	unreachable uint64
	published   []string
}

// NewLegs returns one leg module per leg of body, starting at the
// joint angles stand.
func NewLegs(body *Body, stand kinematics.Vec3) []*Leg {
	legs := make([]*Leg, kinematics.LegCount)
	for i := range legs {
		legs[i] = &Leg{ID: module.NewID(LegName, i), body: body, angles: stand}
	}
	return legs
}

// Init publishes the joint angles and the mode to the log server, if
// one is registered.
func (l *Leg) Init(host module.Host) error {
	l.logger = host.Logger().With("module", module.Key(l))
	server := logserver.Lookup(host)
	if server == nil {
		return nil
	}
	for j := range kinematics.JointCount {
		name := fmt.Sprintf("leg%d.q%d", l.Index(), j)
		if err := server.Publish(name, func() float64 { return l.angles[j] }); err != nil {
			return err
		}
		l.published = append(l.published, name)
	}
	name := fmt.Sprintf("leg%d.mode", l.Index())
	if err := server.Publish(name, func() float64 { return float64(l.mode) }); err != nil {
		return err
	}
	l.published = append(l.published, name)
	return nil
}

// Uninit withdraws the published variables.
func (l *Leg) Uninit(host module.Host) {
	if server := logserver.Lookup(host); server != nil {
		for _, name := range l.published {
			server.Unpublish(name)
		}
	}
	l.published = nil
}

// Activate holds the current joint angles until a setpoint arrives.
func (l *Leg) Activate(module.Host) {
	l.mode = ModeAngles
	l.target = l.angles
	l.rates = kinematics.Vec3{}
}

// Deactivate goes limp: the joints keep their last angles.
func (l *Leg) Deactivate(module.Host) {
	l.mode = ModeIdle
	l.jointRates = kinematics.Vec3{}
}

// Step moves the joints to the latched setpoint.
func (l *Leg) Step(module.Host) {
	switch l.mode {
	case ModePosition:
		angles, ok := l.body.Inverse(l.Index(), l.position)
		if !ok {
			l.unreachable++
			if l.unreachable == 1 {
				l.logger.Warn("foot target unreachable, holding joints", "target", l.position)
			}
			l.jointRates = kinematics.Vec3{}
			return
		}
		l.angles = angles
		l.jointRates = kinematics.Vec3{}
	case ModeAngles:
		l.angles = l.target
		l.jointRates = l.rates
	}
}

// SetTargetPosition latches a foot position setpoint.
func (l *Leg) SetTargetPosition(position, velocity kinematics.Vec3) {
	l.mode = ModePosition
	l.position = position
	l.velocity = velocity
}

// SetTargetAngles latches a joint angle setpoint.
func (l *Leg) SetTargetAngles(angles, rates kinematics.Vec3) {
	l.mode = ModeAngles
	l.target = angles
	l.rates = rates
}

// Mode returns the setpoint kind being tracked.
func (l *Leg) Mode() Mode { return l.mode }

// Angles returns the current joint angles.
func (l *Leg) Angles() kinematics.Vec3 { return l.angles }

// Foot returns the current foot position.
func (l *Leg) Foot() kinematics.Vec3 { return l.body.Forward(l.Index(), l.angles) }

// Unreachable counts position setpoints the solver rejected.
func (l *Leg) Unreachable() uint64 { return l.unreachable }
