// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the supervisor's Prometheus collectors. They
// live on a private registry so that tests and multiple supervisors in
// one process never collide on the default one.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strider-robotics/strider/internal/logpipe"
)

const namespace = "strider"

// Metrics implements module.Observer, phase.Recorder and
// logpipe.Observer.
type Metrics struct {
	registry *prometheus.Registry

	steps         prometheus.Counter
	overruns      prometheus.Counter
	stepDuration  prometheus.Histogram
	transitions   *prometheus.CounterVec
	written       prometheus.Counter
	regFailures   prometheus.Counter
	pipelineState prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "steps_total",
			Help:      "Control cycles executed.",
		}),
		overruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "overruns_total",
			Help:      "Control cycles that took longer than the step period.",
		}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "step_duration_seconds",
			Help:      "Wall time spent stepping the active modules.",
			Buckets:   prometheus.ExponentialBuckets(10e-6, 2, 12),
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Phase machine transitions.",
		}, []string{"machine", "from", "to"}),
		written: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "samples_written_total",
			Help:      "Samples appended to the data log file.",
		}),
		regFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "registration_failures_total",
			Help:      "Failed log registration attempts.",
		}),
		pipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "pipeline_state",
			Help:      "Logging pipeline stage: 0 idle, 1 registering, 2 waiting, 3 logging, 4 complete, 5 disabled, 6 stopped.",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ControlStep records one control cycle.
func (m *Metrics) ControlStep(duration time.Duration, overrun bool) {
	m.steps.Inc()
	m.stepDuration.Observe(duration.Seconds())
	if overrun {
		m.overruns.Inc()
	}
}

// RecordTransition counts a phase transition.
func (m *Metrics) RecordTransition(machine, from, to string) {
	m.transitions.WithLabelValues(machine, from, to).Inc()
}

// SamplesWritten adds n appended samples.
func (m *Metrics) SamplesWritten(n int) { m.written.Add(float64(n)) }

// RegistrationFailed counts a failed registration attempt.
func (m *Metrics) RegistrationFailed() { m.regFailures.Inc() }

// PipelineState records the pipeline stage.
func (m *Metrics) PipelineState(state logpipe.State) { m.pipelineState.Set(float64(state)) }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on listener until ctx is done.
func (m *Metrics) Serve(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	logger.Info("serving metrics", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
