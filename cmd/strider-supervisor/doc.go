// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// strider-supervisor runs the supervisor, the sit behavior and the
// simulated legs in one control loop, optionally writing a data log and
// serving Prometheus metrics.
//
// Configuration is layered: defaults, then each --config file in order,
// then --overrides if present, then each --set snippet. Without
// --config the file named by STRIDER_CONFIG is used, and without either
// the defaults run as-is.
//
// --graph prints the phase machines as Graphviz DOT and exits.
package main
