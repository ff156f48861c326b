// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package phase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Guard decides whether an edge fires given the seconds spent in the
// edge's source state.
type Guard interface {
	Ready(elapsed float64) bool
	String() string
}

// After fires once more than threshold seconds have elapsed.
func After(threshold float64) Guard { return after(threshold) }

type after float64

func (g after) Ready(elapsed float64) bool { return elapsed > float64(g) }
func (g after) String() string {
	return "elapsed > " + strconv.FormatFloat(float64(g), 'g', -1, 64)
}

// Never returns a guard that never fires. It keeps an edge in the graph
// while leaving it inert.
func Never() Guard { return never{} }

type never struct{}

func (never) Ready(float64) bool { return false }
func (never) String() string     { return "never" }

// Threshold is After(seconds) when seconds is positive and Never
// otherwise. Configuration uses zero to mean "no limit".
func Threshold(seconds float64) Guard {
	if seconds <= 0 {
		return Never()
	}
	return After(seconds)
}

// guardEnv is the environment visible to guard expressions.
type guardEnv struct {
	Elapsed float64 `expr:"elapsed"`
}

type expression struct {
	source  string
	program *vm.Program
}

// Expression compiles src into a guard. The expression sees a single
// variable, elapsed, and must evaluate to a boolean, for example
// "elapsed > 4 && elapsed < 30". An empty src yields Never.
func Expression(src string) (Guard, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Never(), nil
	}
	program, err := expr.Compile(src, expr.Env(guardEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling guard %q: %w", src, err)
	}
	return &expression{source: src, program: program}, nil
}

// Ready evaluates the expression. A runtime error counts as not ready.
func (g *expression) Ready(elapsed float64) bool {
	out, err := expr.Run(g.program, guardEnv{Elapsed: elapsed})
	if err != nil {
		return false
	}
	ready, _ := out.(bool)
	return ready
}

func (g *expression) String() string { return g.source }
