// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile interpolates a scalar through time-stamped keyframes.
//
// Each keyframe pins a value and a derivative at a time. Between two
// keyframes the profile follows the cubic Hermite curve matching both
// endpoints, so it passes exactly through every keyframe value with
// exactly the keyframe derivative. Before the first keyframe and after
// the last the profile holds the endpoint value with zero derivative.
//
// A Profiler is not safe for concurrent use. The behavior that owns it
// seeds it on a phase entry and evaluates it on every control step.
package profile

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfOrder is returned by Add when a keyframe's time precedes the
// last keyframe already added.
var ErrOutOfOrder = errors.New("keyframe out of order")

// Keyframe is a (time, value, derivative) triple.
type Keyframe struct {
	Time       float64
	Value      float64
	Derivative float64
}

// Profiler holds an ascending sequence of keyframes.
type Profiler struct {
	keys []Keyframe
}

// Clear removes every keyframe.
func (p *Profiler) Clear() { p.keys = p.keys[:0] }

// Len returns the number of keyframes.
func (p *Profiler) Len() int { return len(p.keys) }

// Span returns the times of the first and last keyframe. Both are zero
// for an empty profiler.
func (p *Profiler) Span() (start, end float64) {
	if len(p.keys) == 0 {
		return 0, 0
	}
	return p.keys[0].Time, p.keys[len(p.keys)-1].Time
}

// Add appends a keyframe. Times must be non-decreasing; a keyframe
// sharing the previous one's time supersedes it from that time on.
func (p *Profiler) Add(time, value, derivative float64) error {
	if n := len(p.keys); n > 0 && time < p.keys[n-1].Time {
		return fmt.Errorf("%w: t=%g after t=%g", ErrOutOfOrder, time, p.keys[n-1].Time)
	}
	p.keys = append(p.keys, Keyframe{Time: time, Value: value, Derivative: derivative})
	return nil
}

// Evaluate returns the profile value and its time derivative at t.
func (p *Profiler) Evaluate(t float64) (value, derivative float64) {
	switch len(p.keys) {
	case 0:
		return 0, 0
	case 1:
		return p.keys[0].Value, 0
	}

	first, last := p.keys[0], p.keys[len(p.keys)-1]
	if t < first.Time {
		return first.Value, 0
	}
	if t > last.Time {
		return last.Value, 0
	}

	// Index of the first keyframe strictly after t. Ties resolve to the
	// last keyframe at that time.
	i := sort.Search(len(p.keys), func(i int) bool { return p.keys[i].Time > t })
	if i == len(p.keys) {
		return last.Value, last.Derivative
	}
	return hermite(p.keys[i-1], p.keys[i], t)
}

// hermite evaluates the cubic Hermite segment between a and b at t,
// where a.Time <= t < b.Time.
func hermite(a, b Keyframe, t float64) (value, derivative float64) {
	h := b.Time - a.Time
	s := (t - a.Time) / h
	s2 := s * s
	s3 := s2 * s

	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	value = h00*a.Value + h10*h*a.Derivative + h01*b.Value + h11*h*b.Derivative

	d00 := 6*s2 - 6*s
	d10 := 3*s2 - 4*s + 1
	d01 := -6*s2 + 6*s
	d11 := 3*s2 - 2*s
	derivative = (d00*a.Value+d01*b.Value)/h + d10*a.Derivative + d11*b.Derivative
	return value, derivative
}
