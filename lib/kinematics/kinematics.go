// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kinematics defines the contracts between limb behaviors and the
// actuation layer: a three-component vector, the kinematic model of a
// quadruped, and the command interface of one leg.
//
// Legs are indexed 0..LegCount-1 in front-left, front-right, rear-left,
// rear-right order, so even and odd legs mirror each other across the
// body's sagittal plane. Each leg has JointCount joints: hip abduction,
// hip flexion, knee.
package kinematics

// LegCount is the number of legs on the body.
const LegCount = 4

// JointCount is the number of actuated joints per leg.
const JointCount = 3

// Vec3 is a position in body coordinates (x forward, y left, z up, in
// meters) or a set of three joint angles in radians.
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]} }

// Mirror returns +1 for even legs and -1 for odd legs. Lateral offsets and
// abduction angles are multiplied by it.
func Mirror(leg int) float64 {
	if leg%2 == 0 {
		return 1
	}
	return -1
}

// Kinematics is the kinematic model of the body.
type Kinematics interface {
	// HipPosition returns the hip joint position of leg in body
	// coordinates.
	HipPosition(leg int) Vec3

	// Inverse solves the joint angles that place the foot of leg at
	// foot. ok is false when foot is unreachable.
	Inverse(leg int, foot Vec3) (angles Vec3, ok bool)
}

// Leg accepts setpoints for one leg. A behavior may only command a leg it
// currently holds.
type Leg interface {
	// SetTargetPosition commands a Cartesian foot position and velocity
	// in body coordinates.
	SetTargetPosition(position, velocity Vec3)

	// SetTargetAngles commands joint angles and joint rates.
	SetTargetAngles(angles, rates Vec3)
}

// JointSensor is implemented by legs that report their measured joint
// angles.
type JointSensor interface {
	Angles() Vec3
}
