// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/strider-robotics/strider/internal/logpipe"
	"github.com/strider-robotics/strider/internal/sit"
	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/config"
	"github.com/strider-robotics/strider/lib/kinematics"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/logwriter"
	"github.com/strider-robotics/strider/lib/module"
	"github.com/strider-robotics/strider/lib/sim"
	"github.com/strider-robotics/strider/lib/testutil"
)

// fakeBehavior stands in for the sit module.
type fakeBehavior struct {
	module.ID
	active bool
	steps  int
}

func (b *fakeBehavior) Init(module.Host) error { return nil }
func (b *fakeBehavior) Uninit(module.Host)     {}
func (b *fakeBehavior) Activate(module.Host)   { b.active = true }
func (b *fakeBehavior) Deactivate(module.Host) { b.active = false }
func (b *fakeBehavior) Step(module.Host)       { b.steps++ }

type harness struct {
	t          *testing.T
	clock      *clock.FakeClock
	host       *module.Manager
	server     *logserver.Server
	supervisor *Supervisor
}

func newHarness(t *testing.T, cfg *config.Config, options Options, logger *slog.Logger) *harness {
	t.Helper()
	if logger == nil {
		logger = testutil.Logger(t)
	}
	h := &harness{t: t, clock: clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))}
	h.host = module.NewManager(context.Background(), module.Options{Clock: h.clock, Logger: logger})
	h.server = logserver.NewServer(0)
	if err := h.host.Add(h.server, module.ClassTelemetry); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Activate(h.server); err != nil {
		t.Fatal(err)
	}
	options.Config = cfg
	options.Clock = h.clock
	supervisor, err := New(options)
	if err != nil {
		t.Fatal(err)
	}
	h.supervisor = supervisor
	if err := h.host.Add(supervisor, module.ClassSupervisor); err != nil {
		t.Fatal(err)
	}
	if err := h.host.Activate(supervisor); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.host.Remove(supervisor) })
	return h
}

func (h *harness) stepAt(t float64) {
	h.t.Helper()
	h.clock.Advance(clock.Seconds(t) - clock.Seconds(h.host.ReadTime()))
	h.host.Step()
}

func (h *harness) shutdown() error { return h.host.ShutdownCause() }

func TestExitTimeRequestsShutdownInAnyPhase(t *testing.T) {
	for _, tc := range []struct {
		name   string
		settle float64
		active float64
		steps  []float64
		want   Phase
	}{
		{name: "init", settle: 100, want: Init},
		{name: "active", settle: 0.1, active: 100, steps: []float64{0.2}, want: Active},
		{name: "exit", settle: 0.1, active: 1, steps: []float64{0.2, 1.5}, want: Exit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Control.Settle = tc.settle
			cfg.Supervisor.ActiveDuration = tc.active
			cfg.Supervisor.ExitGrace = 100
			cfg.Supervisor.ExitTime = 5
			behavior := &fakeBehavior{ID: module.NewID(sit.Name, 0)}
			h := newHarness(t, cfg, Options{Behavior: behavior}, nil)

			for _, at := range tc.steps {
				h.stepAt(at)
			}
			h.stepAt(4.998)
			if h.shutdown() != nil {
				t.Fatalf("shutdown requested before exit time: %v", h.shutdown())
			}
			if h.supervisor.Phase() != tc.want {
				t.Fatalf("phase = %v, want %v", h.supervisor.Phase(), tc.want)
			}
			h.stepAt(5)
			cause := h.shutdown()
			if !errors.Is(cause, module.ErrShutdown) || !strings.Contains(cause.Error(), "exit time 5s") {
				t.Errorf("shutdown cause = %v", cause)
			}
			if h.supervisor.Phase() != tc.want {
				t.Errorf("phase after the deadline = %v, want %v unchanged", h.supervisor.Phase(), tc.want)
			}
		})
	}
}

func TestPhaseSequence(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.ActiveDuration = 2
	behavior := &fakeBehavior{ID: module.NewID(sit.Name, 0)}
	recorder := &transitions{}
	h := newHarness(t, cfg, Options{Behavior: behavior, Recorder: recorder}, nil)

	h.stepAt(0.05)
	if h.supervisor.Phase() != Init || behavior.active {
		t.Fatalf("t=0.05: phase %v, behavior active %v", h.supervisor.Phase(), behavior.active)
	}
	h.stepAt(0.2)
	if h.supervisor.Phase() != Active {
		t.Fatalf("t=0.2: phase %v, want active", h.supervisor.Phase())
	}
	if !behavior.active || !h.host.Holds(behavior, h.supervisor) {
		t.Fatal("behavior not engaged in the active phase")
	}
	h.stepAt(0.3)
	if behavior.steps != 1 {
		t.Errorf("behavior stepped %d times, want 1", behavior.steps)
	}

	h.stepAt(2.3)
	if h.supervisor.Phase() != Exit {
		t.Fatalf("t=2.3: phase %v, want exit", h.supervisor.Phase())
	}
	if behavior.active || h.host.Holds(behavior, h.supervisor) {
		t.Error("behavior still engaged in the exit phase")
	}
	h.stepAt(3.2)
	if h.shutdown() != nil {
		t.Fatal("shutdown requested inside the exit grace period")
	}
	h.stepAt(3.4)
	if cause := h.shutdown(); cause == nil || !strings.Contains(cause.Error(), "exit phase complete") {
		t.Errorf("shutdown cause = %v", cause)
	}

	want := []string{"supervisor:init->active", "supervisor:active->exit"}
	if !slices.Equal(recorder.list(), want) {
		t.Errorf("transitions = %v, want %v", recorder.list(), want)
	}
}

func TestActiveWithoutDurationStaysActive(t *testing.T) {
	behavior := &fakeBehavior{ID: module.NewID(sit.Name, 0)}
	h := newHarness(t, config.Default(), Options{Behavior: behavior}, nil)
	for _, at := range []float64{0.2, 50, 5000} {
		h.stepAt(at)
	}
	if h.supervisor.Phase() != Active || h.shutdown() != nil {
		t.Errorf("phase %v, shutdown %v; want active with no shutdown", h.supervisor.Phase(), h.shutdown())
	}
}

func TestDeactivateReleasesBehavior(t *testing.T) {
	behavior := &fakeBehavior{ID: module.NewID(sit.Name, 0)}
	h := newHarness(t, config.Default(), Options{Behavior: behavior}, nil)
	h.stepAt(0.2)
	if err := h.host.Deactivate(h.supervisor); err != nil {
		t.Fatal(err)
	}
	if behavior.active {
		t.Error("behavior still active after the supervisor was deactivated")
	}
}

func TestUninitRemovesRegisteredBehavior(t *testing.T) {
	behavior := &fakeBehavior{ID: module.NewID(sit.Name, 0)}
	h := newHarness(t, config.Default(), Options{Behavior: behavior}, nil)
	if _, err := h.host.Find(sit.Name, 0); err != nil {
		t.Fatalf("behavior not registered by Init: %v", err)
	}
	if err := h.host.Remove(h.supervisor); err != nil {
		t.Fatal(err)
	}
	if _, err := h.host.Find(sit.Name, 0); !errors.Is(err, module.ErrNotFound) {
		t.Errorf("behavior still registered after Uninit: %v", err)
	}
}

func TestMissingBehaviorDegrades(t *testing.T) {
	recorder, logger := testutil.NewLogRecorder()
	h := newHarness(t, config.Default(), Options{}, logger)
	if n := recorder.Count(slog.LevelWarn, "behavior not found"); n != 1 {
		t.Errorf("got %d missing-behavior warnings, want 1", n)
	}
	h.stepAt(0.2)
	if h.supervisor.Phase() != Active {
		t.Errorf("phase = %v, want active without a behavior", h.supervisor.Phase())
	}
}

func TestLoggingWithoutVariablesNeverStarts(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.Log.Enable = true
	recorder, logger := testutil.NewLogRecorder()
	connects := 0
	h := newHarness(t, cfg, Options{
		Connect: func(module.Host) (logpipe.Service, error) {
			connects++
			return nil, errors.New("unexpected")
		},
	}, logger)
	if h.supervisor.Pipeline() != nil || connects != 0 {
		t.Errorf("pipeline %v, %d connects; want no logging", h.supervisor.Pipeline(), connects)
	}
	if recorder.Count(slog.LevelWarn, "without variables") != 1 {
		t.Error("no warning about the empty variable list")
	}
}

// memoryWriter collects appended samples.
type memoryWriter struct {
	mu      sync.Mutex
	samples []*logserver.Sample
	closed  chan struct{}
	once    sync.Once
}

func (w *memoryWriter) AppendLine(sample *logserver.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, sample)
	return nil
}

func (w *memoryWriter) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

func TestBarrierRaisedAtLogStart(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.Log.Enable = true
	cfg.Supervisor.Log.Start = 1
	cfg.Supervisor.Log.Vars = []string{"supervisor.time"}
	writer := &memoryWriter{closed: make(chan struct{})}
	h := newHarness(t, cfg, Options{
		NewWriter: func([]string) (logwriter.Writer, error) { return writer, nil },
	}, nil)

	pipeline := h.supervisor.Pipeline()
	if pipeline == nil {
		t.Fatal("logging not armed")
	}
	h.stepAt(0.5)
	if pipeline.Barrier().Raised() {
		t.Fatal("barrier raised before the start time")
	}
	h.stepAt(1)
	if !pipeline.Barrier().Raised() {
		t.Fatal("barrier not raised at the start time")
	}

	if err := h.host.Remove(h.supervisor); err != nil {
		t.Fatal(err)
	}
	testutil.RequireClosed(t, pipeline.Done(), 5*time.Second, "pipeline teardown on Uninit")
	testutil.RequireClosed(t, writer.closed, time.Second, "writer closed")
}

func TestDeactivateFinalizesLog(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.Log.Enable = true
	cfg.Supervisor.Log.Start = 1
	cfg.Supervisor.Log.Vars = []string{"supervisor.time"}
	writer := &memoryWriter{closed: make(chan struct{})}
	h := newHarness(t, cfg, Options{
		NewWriter: func([]string) (logwriter.Writer, error) { return writer, nil },
	}, nil)
	pipeline := h.supervisor.Pipeline()
	if pipeline == nil {
		t.Fatal("logging not armed")
	}
	h.stepAt(0.5)
	h.stepAt(1)

	if err := h.host.Deactivate(h.supervisor); err != nil {
		t.Fatal(err)
	}
	testutil.RequireClosed(t, pipeline.Done(), 5*time.Second, "pipeline teardown on Deactivate")
	testutil.RequireClosed(t, writer.closed, time.Second, "writer closed")
	if got := pipeline.State(); got != logpipe.StateStopped {
		t.Errorf("pipeline state = %v, want stopped", got)
	}
}

// waitForState polls until the pipeline goroutine reaches want.
func waitForState(t *testing.T, pipeline *logpipe.Pipeline, want logpipe.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for pipeline.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("pipeline state %v, want %v", pipeline.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

type transitions struct {
	mu   sync.Mutex
	seen []string
}

func (r *transitions) RecordTransition(machine, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, machine+":"+from+"->"+to)
}

func (r *transitions) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen)
}

// TestSitRunWritesLog runs the supervisor, the sit behavior and the
// simulated legs for nine seconds of mission time and checks the
// resulting data log.
func TestSitRunWritesLog(t *testing.T) {
	cfg := config.Default()
	cfg.RunID = "sit-run"
	cfg.Supervisor.ExitTime = 9
	cfg.Sit.Wait = 1
	cfg.Sit.Transition = 2
	cfg.Supervisor.Log = config.LogConfig{
		Enable:     true,
		Start:      0.5,
		FileName:   filepath.Join(t.TempDir(), "logs", "sit.log"),
		Period:     5,
		FileFormat: "ascii",
		Vars:       []string{"supervisor.time", "sit.phase", "leg0.q1", "sit.leg1.q0"},
	}

	h := &harness{t: t, clock: clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))}
	h.host = module.NewManager(context.Background(), module.Options{Clock: h.clock, Logger: testutil.Logger(t)})
	h.server = logserver.NewServer(0)
	if err := h.host.Add(h.server, module.ClassTelemetry); err != nil {
		t.Fatal(err)
	}
	body := sim.Go2()
	for _, leg := range sim.NewLegs(body, kinematics.Vec3{0, 0.8, -1.6}) {
		if err := h.host.Add(leg, module.ClassActuation); err != nil {
			t.Fatal(err)
		}
	}
	behavior, err := sit.New(cfg.Sit, body, nil)
	if err != nil {
		t.Fatal(err)
	}
	supervisor, err := New(Options{Config: cfg, Behavior: behavior, Clock: h.clock})
	if err != nil {
		t.Fatal(err)
	}
	h.supervisor = supervisor
	if err := h.host.Add(supervisor, module.ClassSupervisor); err != nil {
		t.Fatal(err)
	}
	for _, m := range []module.Module{h.server, supervisor} {
		if err := h.host.Activate(m); err != nil {
			t.Fatal(err)
		}
	}

	pipeline := supervisor.Pipeline()
	for i := 0; h.host.Context().Err() == nil; i++ {
		if i > 10000 {
			t.Fatal("no shutdown after exit time")
		}
		h.clock.Advance(2 * time.Millisecond)
		h.host.Step()
		if h.host.ReadTime() == 0.5 {
			waitForState(t, pipeline, logpipe.StateLogging)
		}
	}
	if got := h.host.ReadTime(); got != 9 {
		t.Errorf("shutdown at t=%v, want 9", got)
	}
	if behavior.Phase() != sit.Hold {
		t.Errorf("sit phase at exit = %v, want hold", behavior.Phase())
	}

	testutil.RequireClosed(t, pipeline.Done(), 5*time.Second, "pipeline teardown after shutdown")
	if err := h.host.Remove(supervisor); err != nil {
		t.Fatal(err)
	}

	manifest, err := logwriter.Verify(cfg.Supervisor.Log.FileName)
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Description != LogDescription || manifest.RunID != "sit-run" {
		t.Errorf("manifest = %+v", manifest)
	}
	if manifest.Samples == 0 || manifest.Samples != pipeline.Written() {
		t.Errorf("manifest counts %d samples, pipeline wrote %d", manifest.Samples, pipeline.Written())
	}
	if manifest.FirstTime < 0.5 {
		t.Errorf("first sample at t=%v, before the log start", manifest.FirstTime)
	}

	data, err := os.ReadFile(cfg.Supervisor.Log.FileName)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "# "+LogDescription {
		t.Errorf("first line = %q", lines[0])
	}
	last := strings.Split(lines[len(lines)-1], "\t")
	if len(last) != 6 {
		t.Fatalf("last row has %d columns: %q", len(last), lines[len(lines)-1])
	}
	want := map[int]float64{
		3: float64(sit.Hold),
		4: 1.2,
		5: sit.Posture(cfg.Sit, 1)[0],
	}
	for column, value := range want {
		got, err := strconv.ParseFloat(last[column], 64)
		if err != nil || got != value {
			t.Errorf("column %d of the last row = %q, want %v", column, last[column], value)
		}
	}
}
