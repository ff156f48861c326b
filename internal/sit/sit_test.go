// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sit

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/config"
	"github.com/strider-robotics/strider/lib/kinematics"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/module"
	"github.com/strider-robotics/strider/lib/testutil"
)

// fakeLeg records the last setpoint of each kind.
type fakeLeg struct {
	module.ID
	position  kinematics.Vec3
	angles    kinematics.Vec3
	rates     kinematics.Vec3
	positions int
	angleSets int
}

func (*fakeLeg) Init(module.Host) error { return nil }
func (*fakeLeg) Uninit(module.Host)     {}
func (*fakeLeg) Activate(module.Host)   {}
func (*fakeLeg) Deactivate(module.Host) {}
func (*fakeLeg) Step(module.Host)       {}

func (l *fakeLeg) SetTargetPosition(position, _ kinematics.Vec3) {
	l.position = position
	l.positions++
}

func (l *fakeLeg) SetTargetAngles(angles, rates kinematics.Vec3) {
	l.angles = angles
	l.rates = rates
	l.angleSets++
}

// sensingLeg also reports measured joint angles.
type sensingLeg struct {
	*fakeLeg
	measured kinematics.Vec3
}

func (l *sensingLeg) Angles() kinematics.Vec3 { return l.measured }

// fakeKinematics solves every foot to the same angles unless the leg is
// marked as failing.
type fakeKinematics struct {
	angles  kinematics.Vec3
	failing map[int]bool
	calls   []kinematics.Vec3
}

func (k *fakeKinematics) HipPosition(leg int) kinematics.Vec3 {
	return kinematics.Vec3{float64(leg), 0.05, 0}
}

func (k *fakeKinematics) Inverse(leg int, foot kinematics.Vec3) (kinematics.Vec3, bool) {
	k.calls = append(k.calls, foot)
	if k.failing[leg] {
		return kinematics.Vec3{}, false
	}
	return k.angles, true
}

type recorder struct{ transitions []string }

func (r *recorder) RecordTransition(machine, from, to string) {
	r.transitions = append(r.transitions, machine+":"+from+"->"+to)
}

type harness struct {
	t        *testing.T
	clock    *clock.FakeClock
	host     *module.Manager
	server   *logserver.Server
	behavior *Behavior
	legs     []*fakeLeg
	model    *fakeKinematics
	recorder *recorder
}

func testConfig() config.SitConfig {
	cfg := config.Default().Sit
	cfg.Hold = 2
	return cfg
}

func newHarness(t *testing.T, cfg config.SitConfig, legCount int, logger *slog.Logger) *harness {
	t.Helper()
	return newSensingHarness(t, cfg, legCount, logger, nil)
}

// newSensingHarness is newHarness where the legs in measured report the
// given joint angles.
func newSensingHarness(t *testing.T, cfg config.SitConfig, legCount int, logger *slog.Logger, measured map[int]kinematics.Vec3) *harness {
	t.Helper()
	if logger == nil {
		logger = testutil.Logger(t)
	}
	h := &harness{
		t:        t,
		clock:    clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		model:    &fakeKinematics{failing: map[int]bool{}},
		recorder: &recorder{},
	}
	h.host = module.NewManager(context.Background(), module.Options{Clock: h.clock, Logger: logger})
	h.server = logserver.NewServer(0)
	if err := h.host.Add(h.server, module.ClassTelemetry); err != nil {
		t.Fatal(err)
	}
	for i := range legCount {
		leg := &fakeLeg{ID: module.NewID(LegModule, i)}
		var m module.Module = leg
		if angles, ok := measured[i]; ok {
			m = &sensingLeg{fakeLeg: leg, measured: angles}
		}
		if err := h.host.Add(m, module.ClassActuation); err != nil {
			t.Fatal(err)
		}
		h.legs = append(h.legs, leg)
	}
	behavior, err := New(cfg, h.model, h.recorder)
	if err != nil {
		t.Fatal(err)
	}
	h.behavior = behavior
	if err := h.host.Add(behavior, module.ClassBehavior); err != nil {
		t.Fatal(err)
	}
	return h
}

// stepAt advances mission time to t seconds and runs one control cycle.
func (h *harness) stepAt(t float64) {
	h.t.Helper()
	h.clock.Advance(clock.Seconds(t) - clock.Seconds(h.host.ReadTime()))
	h.host.Step()
}

func TestPhaseSequence(t *testing.T) {
	h := newHarness(t, testConfig(), kinematics.LegCount, nil)
	h.model.angles = kinematics.Vec3{0, 0, 0}
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	for leg := range kinematics.LegCount {
		if !h.behavior.Holds(leg) {
			t.Fatalf("leg %d not grabbed on activation", leg)
		}
	}

	h.stepAt(1)
	if h.behavior.Phase() != Wait {
		t.Fatalf("phase at t=1 = %v, want wait", h.behavior.Phase())
	}
	origin := testConfig().Origin
	for leg, fake := range h.legs {
		want := kinematics.Vec3{float64(leg) + origin[0], 0.05 + origin[1]*kinematics.Mirror(leg), origin[2]}
		if fake.position != want {
			t.Errorf("leg %d standing foot = %v, want %v", leg, fake.position, want)
		}
	}

	h.stepAt(3)
	if h.behavior.Phase() != Wait {
		t.Fatalf("left wait at elapsed == wait; the guard is strict")
	}
	h.stepAt(3.5)
	if h.behavior.Phase() != Transition {
		t.Fatalf("phase at t=3.5 = %v, want transition", h.behavior.Phase())
	}
	if h.legs[0].angleSets != 0 {
		t.Error("transition entry step also ran during")
	}
	if len(h.model.calls) != kinematics.LegCount || h.model.calls[1] != h.legs[1].position {
		t.Errorf("inverse kinematics calls = %v, want one per leg at the commanded foot", h.model.calls)
	}

	h.stepAt(3.5)
	for leg, fake := range h.legs {
		if fake.angles != (kinematics.Vec3{}) {
			t.Errorf("leg %d angles at transition start = %v, want zero", leg, fake.angles)
		}
	}

	h.stepAt(5.5)
	for leg, fake := range h.legs {
		posture := Posture(testConfig(), leg)
		for joint := range kinematics.JointCount {
			low, high := min(0, posture[joint]), max(0, posture[joint])
			if q := fake.angles[joint]; q <= low || q >= high {
				t.Errorf("leg %d joint %d at midpoint = %v, want strictly inside (%v, %v)", leg, joint, q, low, high)
			}
		}
	}

	h.stepAt(7.5)
	for leg, fake := range h.legs {
		if want := Posture(testConfig(), leg); fake.angles != want || fake.rates != (kinematics.Vec3{}) {
			t.Errorf("leg %d at transition end = %v/%v, want %v with zero rate", leg, fake.angles, fake.rates, want)
		}
	}

	h.stepAt(8)
	if h.behavior.Phase() != Hold {
		t.Fatalf("phase at t=8 = %v, want hold", h.behavior.Phase())
	}
	h.stepAt(9)
	if h.legs[3].angles != Posture(testConfig(), 3) {
		t.Errorf("hold posture = %v", h.legs[3].angles)
	}

	h.stepAt(10.5)
	if h.behavior.Phase() != Done {
		t.Fatalf("phase at t=10.5 = %v, want done", h.behavior.Phase())
	}
	sets := h.legs[0].angleSets
	h.stepAt(11)
	if h.legs[0].angleSets != sets {
		t.Error("done phase still commands the legs")
	}

	want := []string{"sit:wait->transition", "sit:transition->hold", "sit:hold->done"}
	if !slices.Equal(h.recorder.transitions, want) {
		t.Errorf("transitions = %v, want %v", h.recorder.transitions, want)
	}
}

func TestHoldWithoutDurationNeverEnds(t *testing.T) {
	cfg := testConfig()
	cfg.Hold = 0
	h := newHarness(t, cfg, kinematics.LegCount, nil)
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	for _, at := range []float64{3.5, 8, 100, 10000} {
		h.stepAt(at)
	}
	if h.behavior.Phase() != Hold {
		t.Errorf("phase = %v, want hold", h.behavior.Phase())
	}
}

func near(a, b kinematics.Vec3) bool {
	for j := range a {
		if math.Abs(a[j]-b[j]) > 1e-4 {
			return false
		}
	}
	return true
}

func TestInverseKinematicsFailureKeepsCommandsContinuous(t *testing.T) {
	recorder, logger := testutil.NewLogRecorder()
	measured := kinematics.Vec3{0.05, 0.85, -1.65}
	h := newSensingHarness(t, testConfig(), kinematics.LegCount, logger, map[int]kinematics.Vec3{1: measured})
	h.model.angles = kinematics.Vec3{0.1, 0.7, -1.4}
	h.model.failing[1] = true
	h.model.failing[2] = true

	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(1)
	standing := h.legs[2].position
	h.stepAt(3.5)
	h.stepAt(3.502)
	if got := h.legs[0].angles; !near(got, h.model.angles) {
		t.Errorf("solved leg starts at %v, want %v", got, h.model.angles)
	}
	if got := h.legs[1].angles; !near(got, measured) {
		t.Errorf("unsolved leg with measurements starts at %v, want measured %v", got, measured)
	}
	if !h.behavior.HoldsFoot(2) || h.legs[2].angleSets != 0 || h.legs[2].position != standing {
		t.Errorf("unsolved leg without measurements: holds foot %v, %d angle setpoints, position %v (standing %v)",
			h.behavior.HoldsFoot(2), h.legs[2].angleSets, h.legs[2].position, standing)
	}
	if n := recorder.Count(slog.LevelWarn, "inverse kinematics failed"); n != 1 {
		t.Errorf("got %d solver warnings in one step, want 1", n)
	}

	h.stepAt(9)
	h.stepAt(9.5)
	if h.behavior.Phase() != Hold {
		t.Fatalf("phase = %v, want hold", h.behavior.Phase())
	}
	if got, want := h.legs[1].angles, Posture(testConfig(), 1); got != want {
		t.Errorf("leg 1 holds %v, want the posture %v", got, want)
	}
	if h.legs[2].angleSets != 0 || h.legs[2].position != standing {
		t.Errorf("leg 2 left its standing foot position in hold")
	}
	if h.behavior.Command(2) != (kinematics.Vec3{}) {
		t.Errorf("leg 2 command = %v, want none", h.behavior.Command(2))
	}

	// A second run warns again once the limiter has refilled, and
	// starts without any leg pinned to its foot position.
	if err := h.host.Deactivate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(20)
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	if h.behavior.HoldsFoot(2) {
		t.Error("foot hold survived reactivation")
	}
	h.stepAt(23.5)
	if n := recorder.Count(slog.LevelWarn, "inverse kinematics failed"); n != 2 {
		t.Errorf("got %d solver warnings, want 2", n)
	}
}

func TestPostureAbductionPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Posture = [3]float64{0.5, 1.2, -2.7}
	for leg, want := range []float64{0.5, -0.5, 0.5, -0.5} {
		if got := Posture(cfg, leg)[0]; got != want {
			t.Errorf("mirrored abduction of leg %d = %v, want %v", leg, got, want)
		}
	}
	cfg.Abduction = config.AbductionUniform
	for leg := range kinematics.LegCount {
		if got := Posture(cfg, leg); got != (kinematics.Vec3{0.5, 1.2, -2.7}) {
			t.Errorf("uniform posture of leg %d = %v", leg, got)
		}
	}
}

func TestMissingLegsDegrade(t *testing.T) {
	recorder, logger := testutil.NewLogRecorder()
	h := newHarness(t, testConfig(), 2, logger)
	if n := recorder.Count(slog.LevelWarn, "leg not found"); n != 2 {
		t.Errorf("got %d missing-leg warnings, want 2", n)
	}
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(1)
	for leg := range 2 {
		if h.legs[leg].positions != 1 {
			t.Errorf("leg %d got %d position setpoints, want 1", leg, h.legs[leg].positions)
		}
	}
	if h.behavior.Holds(2) || h.behavior.Holds(3) {
		t.Error("behavior claims to hold a missing leg")
	}
}

func TestHeldLegIsNotCommanded(t *testing.T) {
	h := newHarness(t, testConfig(), kinematics.LegCount, nil)
	other := &fakeLeg{ID: module.NewID("other", 0)}
	if err := h.host.Add(other, module.ClassBehavior); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Grab(h.legs[2], other); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(1)
	if h.behavior.Holds(2) || h.legs[2].positions != 0 {
		t.Errorf("leg held by another module was commanded %d times", h.legs[2].positions)
	}

	if err := h.host.Deactivate(h.behavior); err != nil {
		t.Fatal(err)
	}
	if !h.host.Holds(h.legs[2], other) {
		t.Error("deactivating sit released a leg it never held")
	}
	if h.host.Holds(h.legs[0], h.behavior) {
		t.Error("sit still holds leg 0 after deactivation")
	}
}

func TestLegTakenByAnotherModuleIsNotCommanded(t *testing.T) {
	h := newHarness(t, testConfig(), kinematics.LegCount, nil)
	other := &fakeLeg{ID: module.NewID("other", 0)}
	if err := h.host.Add(other, module.ClassBehavior); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(1)
	if h.legs[0].positions != 1 {
		t.Fatalf("leg 0 got %d setpoints, want 1", h.legs[0].positions)
	}

	if err := h.host.Release(h.legs[0], h.behavior); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Grab(h.legs[0], other); err != nil {
		t.Fatal(err)
	}
	h.stepAt(2)
	if h.behavior.Holds(0) || h.legs[0].positions != 1 {
		t.Errorf("leg owned by another module was commanded (%d setpoints)", h.legs[0].positions)
	}
	if h.legs[1].positions != 2 {
		t.Errorf("leg 1 got %d setpoints, want 2", h.legs[1].positions)
	}

	if err := h.host.Deactivate(h.behavior); err != nil {
		t.Fatal(err)
	}
	if !h.host.Holds(h.legs[0], other) {
		t.Error("deactivating sit released a leg owned by another module")
	}
}

func TestTransitionGuardExpression(t *testing.T) {
	cfg := testConfig()
	cfg.TransitionGuard = "elapsed > 1"
	h := newHarness(t, cfg, kinematics.LegCount, nil)
	if err := h.host.Activate(h.behavior); err != nil {
		t.Fatal(err)
	}
	h.stepAt(3.5)
	h.stepAt(4.6)
	if h.behavior.Phase() != Hold {
		t.Errorf("phase = %v, want hold after the guard expression fired", h.behavior.Phase())
	}

	cfg.TransitionGuard = "elapsed >"
	if _, err := New(cfg, h.model, nil); err == nil || !strings.Contains(err.Error(), "sit.transition_guard") {
		t.Errorf("New with invalid guard: err = %v", err)
	}
}

func TestPublishesVariables(t *testing.T) {
	h := newHarness(t, testConfig(), kinematics.LegCount, nil)
	vars := h.server.Variables()
	for _, name := range []string{"sit.phase", "sit.leg0.q0", "sit.leg3.q2"} {
		if !slices.Contains(vars, name) {
			t.Errorf("%s not published", name)
		}
	}
	if err := h.host.Remove(h.behavior); err != nil {
		t.Fatal(err)
	}
	if len(h.server.Variables()) != 0 {
		t.Errorf("variables left after Remove: %v", h.server.Variables())
	}
}
