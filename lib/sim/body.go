// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sim is a simulated actuation backend: a kinematic body model
// with a closed-form leg solver, and leg modules that track their
// setpoints perfectly. It stands in for the motor drivers when the
// supervisor runs off the robot and in tests.
package sim

import (
	"math"

	"github.com/strider-robotics/strider/lib/kinematics"
)

// Body is a quadruped with identical three-link legs: a lateral hip
// offset, a thigh and a calf. It implements kinematics.Kinematics.
type Body struct {
	// Hips are the hip joint positions in body coordinates. Even legs
	// sit on the +y side.
	Hips [kinematics.LegCount]kinematics.Vec3

	// HipOffset is the lateral distance from the abduction axis to the
	// thigh, pointing away from the body.
	HipOffset float64

	Thigh float64
	Calf  float64
}

// Go2 returns the dimensions of a Unitree Go2-sized body.
func Go2() *Body {
	const halfLength, halfWidth = 0.1934, 0.0465
	return &Body{
		Hips: [kinematics.LegCount]kinematics.Vec3{
			{halfLength, halfWidth, 0},
			{halfLength, -halfWidth, 0},
			{-halfLength, halfWidth, 0},
			{-halfLength, -halfWidth, 0},
		},
		HipOffset: 0.0955,
		Thigh:     0.213,
		Calf:      0.213,
	}
}

// HipPosition returns the hip position of leg.
func (b *Body) HipPosition(leg int) kinematics.Vec3 {
	return b.Hips[leg]
}

// Forward returns the foot position of leg, in body coordinates, for
// joint angles q (abduction about x, hip and knee about y).
func (b *Body) Forward(leg int, q kinematics.Vec3) kinematics.Vec3 {
	side := kinematics.Mirror(leg) * b.HipOffset
	x := -b.Thigh*math.Sin(q[1]) - b.Calf*math.Sin(q[1]+q[2])
	down := -b.Thigh*math.Cos(q[1]) - b.Calf*math.Cos(q[1]+q[2])
	sin, cos := math.Sincos(q[0])
	y := side*cos - down*sin
	z := side*sin + down*cos
	return b.Hips[leg].Add(kinematics.Vec3{x, y, z})
}

// Inverse solves the joint angles that put the foot of leg at foot. The
// knee always bends backward (q[2] <= 0). ok is false when foot is out
// of reach or inside the hip offset.
func (b *Body) Inverse(leg int, foot kinematics.Vec3) (kinematics.Vec3, bool) {
	if leg < 0 || leg >= kinematics.LegCount {
		return kinematics.Vec3{}, false
	}
	hip := b.Hips[leg]
	x, y, z := foot[0]-hip[0], foot[1]-hip[1], foot[2]-hip[2]
	side := kinematics.Mirror(leg) * b.HipOffset

	// Length of the leg projected into its sagittal plane.
	squared := y*y + z*z - side*side
	if squared < 0 {
		return kinematics.Vec3{}, false
	}
	length := math.Sqrt(squared)
	abduction := math.Atan2(z, y) - math.Atan2(-length, side)

	reach := x*x + length*length
	cosKnee := (reach - b.Thigh*b.Thigh - b.Calf*b.Calf) / (2 * b.Thigh * b.Calf)
	if cosKnee < -1 || cosKnee > 1 || math.IsNaN(cosKnee) {
		return kinematics.Vec3{}, false
	}
	knee := -math.Acos(cosKnee)

	a := b.Thigh + b.Calf*math.Cos(knee)
	c := b.Calf * math.Sin(knee)
	hipFlex := math.Atan2(-x, length) - math.Atan2(c, a)

	return kinematics.Vec3{wrap(abduction), wrap(hipFlex), knee}, true
}

// wrap maps an angle into (-pi, pi].
func wrap(angle float64) float64 {
	angle = math.Mod(angle+math.Pi, 2*math.Pi)
	if angle <= 0 {
		angle += 2 * math.Pi
	}
	return angle - math.Pi
}
