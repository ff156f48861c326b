// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package phase

import (
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
)

// Graph renders the machine as a Graphviz digraph. The initial state is
// drawn bold; states without outgoing edges are drawn as double circles.
// Edge labels are the guards.
func (m *Machine[S]) Graph() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(strconv.Quote(m.name)); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	outgoing := make(map[S]bool)
	for _, edge := range m.edges {
		outgoing[edge.From] = true
	}

	graphName := strconv.Quote(m.name)
	for _, s := range m.states {
		attrs := map[string]string{"shape": "circle"}
		if !outgoing[s] {
			attrs["shape"] = "doublecircle"
		}
		if s == m.initial {
			attrs["style"] = "bold"
		}
		if err := g.AddNode(graphName, strconv.Quote(s.String()), attrs); err != nil {
			return "", fmt.Errorf("adding state %s: %w", s, err)
		}
	}
	for _, edge := range m.edges {
		attrs := map[string]string{"label": strconv.Quote(edge.Guard.String())}
		if err := g.AddEdge(strconv.Quote(edge.From.String()), strconv.Quote(edge.To.String()), true, attrs); err != nil {
			return "", fmt.Errorf("adding edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}
	return g.String(), nil
}
