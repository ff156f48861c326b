// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"errors"
	"math"
	"testing"
	"testing/quick"
)

func TestEvaluateEmptyAndSingle(t *testing.T) {
	var p Profiler
	if v, d := p.Evaluate(1); v != 0 || d != 0 {
		t.Errorf("empty Evaluate = (%v, %v), want (0, 0)", v, d)
	}

	if err := p.Add(2, 0.7, 3); err != nil {
		t.Fatal(err)
	}
	for _, at := range []float64{-1, 2, 10} {
		if v, d := p.Evaluate(at); v != 0.7 || d != 0 {
			t.Errorf("single Evaluate(%v) = (%v, %v), want (0.7, 0)", at, v, d)
		}
	}
}

func TestEvaluateBoundariesAreExact(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 0, 0, 0)
	mustAdd(t, &p, 4, 1.2, 0)

	if v, d := p.Evaluate(0); v != 0 || d != 0 {
		t.Errorf("Evaluate(0) = (%v, %v), want (0, 0)", v, d)
	}
	if v, d := p.Evaluate(4); v != 1.2 || d != 0 {
		t.Errorf("Evaluate(4) = (%v, %v), want (1.2, 0)", v, d)
	}
	v, d := p.Evaluate(2)
	if !(v > 0 && v < 1.2) {
		t.Errorf("Evaluate(2) = %v, want strictly inside (0, 1.2)", v)
	}
	if d <= 0 {
		t.Errorf("derivative at midpoint = %v, want positive", d)
	}
}

func TestEvaluateNonZeroBoundaryDerivatives(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 1, 2, -1)
	mustAdd(t, &p, 3, 5, 4)
	if v, d := p.Evaluate(1); v != 2 || d != -1 {
		t.Errorf("Evaluate(1) = (%v, %v), want (2, -1)", v, d)
	}
	if v, d := p.Evaluate(3); v != 5 || d != 4 {
		t.Errorf("Evaluate(3) = (%v, %v), want (5, 4)", v, d)
	}
}

func TestEvaluateHoldsOutsideSpan(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 1, -2.7, 0.5)
	mustAdd(t, &p, 5, 0, 0.5)

	if v, d := p.Evaluate(0); v != -2.7 || d != 0 {
		t.Errorf("before span = (%v, %v), want (-2.7, 0)", v, d)
	}
	if v, d := p.Evaluate(100); v != 0 || d != 0 {
		t.Errorf("after span = (%v, %v), want (0, 0)", v, d)
	}
}

func TestEvaluateMultipleSegments(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 0, 0, 0)
	mustAdd(t, &p, 1, 1, 0)
	mustAdd(t, &p, 2, 0, 0)

	if v, _ := p.Evaluate(1); v != 1 {
		t.Errorf("Evaluate(1) = %v, want 1", v)
	}
	if v, _ := p.Evaluate(1.5); !(v > 0 && v < 1) {
		t.Errorf("Evaluate(1.5) = %v, want inside (0, 1)", v)
	}
}

func TestAddRejectsOutOfOrder(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 2, 0, 0)
	err := p.Add(1, 1, 0)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("Add out of order: err = %v, want ErrOutOfOrder", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d after rejected Add, want 1", p.Len())
	}
}

func TestTiedKeyframeSupersedes(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 0, 0, 0)
	mustAdd(t, &p, 1, 1, 0)
	mustAdd(t, &p, 1, 3, 0)
	mustAdd(t, &p, 2, 3, 0)

	if v, _ := p.Evaluate(1); v != 3 {
		t.Errorf("Evaluate at tie = %v, want the later keyframe's 3", v)
	}
	if v, _ := p.Evaluate(1.5); v != 3 {
		t.Errorf("Evaluate(1.5) = %v, want 3", v)
	}
}

func TestClear(t *testing.T) {
	var p Profiler
	mustAdd(t, &p, 0, 1, 0)
	mustAdd(t, &p, 1, 2, 0)
	p.Clear()
	if p.Len() != 0 {
		t.Fatalf("Len = %d after Clear", p.Len())
	}
	if start, end := p.Span(); start != 0 || end != 0 {
		t.Errorf("Span = (%v, %v) after Clear", start, end)
	}
	// Times before the cleared keyframes are accepted again.
	mustAdd(t, &p, -1, 0, 0)
}

// With zero boundary derivatives the curve never leaves the interval
// between its endpoint values and never reverses direction.
func TestZeroDerivativeSegmentIsMonotone(t *testing.T) {
	property := func(a, b int16, rawDuration uint8) bool {
		from, to := float64(a)/100, float64(b)/100
		duration := float64(rawDuration)/10 + 0.1

		var p Profiler
		if p.Add(0, from, 0) != nil || p.Add(duration, to, 0) != nil {
			return false
		}
		low, high := math.Min(from, to), math.Max(from, to)
		tolerance := 1e-12 * (1 + math.Abs(high))

		previous := from
		for i := 0; i <= 64; i++ {
			v, _ := p.Evaluate(duration * float64(i) / 64)
			if v < low-tolerance || v > high+tolerance {
				return false
			}
			if to >= from && v < previous-tolerance {
				return false
			}
			if to < from && v > previous+tolerance {
				return false
			}
			previous = v
		}
		return true
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func mustAdd(t *testing.T, p *Profiler, time, value, derivative float64) {
	t.Helper()
	if err := p.Add(time, value, derivative); err != nil {
		t.Fatalf("Add(%v, %v, %v): %v", time, value, derivative, err)
	}
}
