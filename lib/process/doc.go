// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for Strider binaries:
// reporting an error to stderr before the structured logger exists, and
// mapping the outcome of run() to an exit status.
package process
