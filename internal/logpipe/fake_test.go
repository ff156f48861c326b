// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/logwriter"
	"github.com/strider-robotics/strider/lib/testutil"
)

var errUnknown = errors.New("unknown variable")

// fakeService answers Query from a script and hands out fakeTasks.
type fakeService struct {
	mu      sync.Mutex
	answers []bool // Query results in order; true once exhausted
	queries int
	reject  map[string]int // variable -> number of tasks that reject it
	tasks   []*fakeTask
	closed  int
}

func newFakeService() *fakeService {
	return &fakeService{reject: make(map[string]int)}
}

func (s *fakeService) Query() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if len(s.answers) == 0 {
		return true
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer
}

func (s *fakeService) NewTask() (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{reject: make(map[string]bool)}
	for name, n := range s.reject {
		if n > 0 {
			task.reject[name] = true
			s.reject[name] = n - 1
		}
	}
	s.tasks = append(s.tasks, task)
	return task, nil
}

func (s *fakeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeService) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *fakeService) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeService) task(i int) *fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[i]
}

func (s *fakeService) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type fakeTask struct {
	mu       sync.Mutex
	reject   map[string]bool
	vars     []string
	starts   int
	period   int
	limit    int
	queue    []*logserver.Sample
	finished bool
	aborted  bool
}

func (t *fakeTask) AddVar(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reject[name] {
		return errUnknown
	}
	t.vars = append(t.vars, name)
	return nil
}

func (t *fakeTask) VarList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.vars)
}

func (t *fakeTask) StartLog(period, limit int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts++
	t.period, t.limit = period, limit
	return nil
}

func (t *fakeTask) GetData(channel int) *logserver.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if channel != 0 || len(t.queue) == 0 {
		return nil
	}
	sample := t.queue[0]
	t.queue = t.queue[1:]
	return sample
}

func (t *fakeTask) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (t.finished || t.aborted) && len(t.queue) == 0
}

func (t *fakeTask) AbortLog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
}

func (t *fakeTask) push(ticks ...uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tick := range ticks {
		t.queue = append(t.queue, &logserver.Sample{Tick: tick, Time: float64(tick) * 0.002, Values: []float64{float64(tick), -float64(tick)}})
	}
}

func (t *fakeTask) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = true
}

func (t *fakeTask) snapshot() (starts int, aborted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts, t.aborted
}

// fakeWriter records appended ticks and can fail on demand.
type fakeWriter struct {
	mu        sync.Mutex
	variables []string
	ticks     []uint64
	fail      error
	closes    int
	closed    chan struct{}
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{closed: make(chan struct{})}
}

func (w *fakeWriter) factory(variables []string) (logwriter.Writer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.variables = variables
	return w, nil
}

func (w *fakeWriter) AppendLine(sample *logserver.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.ticks = append(w.ticks, sample.Tick)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	if w.closes == 1 {
		close(w.closed)
	}
	return nil
}

func (w *fakeWriter) appended() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.ticks)
}

// fakeObserver forwards state changes to a channel.
type fakeObserver struct {
	mu       sync.Mutex
	written  int
	failures int
	states   chan State
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{states: make(chan State, 64)}
}

func (o *fakeObserver) SamplesWritten(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written += n
}

func (o *fakeObserver) RegistrationFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func (o *fakeObserver) PipelineState(state State) { o.states <- state }

func (o *fakeObserver) counts() (written, failures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written, o.failures
}

// waitState consumes state changes until want arrives.
func (o *fakeObserver) waitState(t *testing.T, want State) {
	t.Helper()
	for {
		got := testutil.RequireReceive(t, o.states, 5*time.Second, "pipeline state %v", want)
		if got == want {
			return
		}
	}
}
