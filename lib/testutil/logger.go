// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Logger returns a logger for t. Output goes to t.Log when the test runs
// verbosely and is discarded otherwise.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	if !testing.Verbose() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Entry is one record kept by a LogRecorder.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder is an slog.Handler that records every entry at debug level
// and above. Safe for concurrent use.
type LogRecorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
}

// NewLogRecorder returns an empty recorder and a logger writing to it.
func NewLogRecorder() (*LogRecorder, *slog.Logger) {
	recorder := &LogRecorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
	return recorder, slog.New(recorder)
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *LogRecorder) Handle(_ context.Context, record slog.Record) error {
	entry := Entry{Level: record.Level, Message: record.Message, Attrs: make(map[string]any)}
	for _, attr := range r.attrs {
		entry.Attrs[attr.Key] = attr.Value.Any()
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.Attrs[attr.Key] = attr.Value.Any()
		return true
	})
	r.mu.Lock()
	*r.entries = append(*r.entries, entry)
	r.mu.Unlock()
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *r
	clone.attrs = append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &clone
}

// WithGroup ignores grouping; recorded attribute keys stay flat.
func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Entries returns a copy of everything recorded so far.
func (r *LogRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), *r.entries...)
}

// Count returns how many entries were recorded at level whose message
// contains substring.
func (r *LogRecorder) Count(level slog.Level, substring string) int {
	n := 0
	for _, entry := range r.Entries() {
		if entry.Level == level && strings.Contains(entry.Message, substring) {
			n++
		}
	}
	return n
}
