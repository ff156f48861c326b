// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific exit status out of run().
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Code maps an error from run() to a process exit status: 0 for nil,
// the carried code for an ExitError, 1 otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// report writes "error: err" to w unless err is nil or an ExitError
// with no underlying error.
func report(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exit *ExitError
	if errors.As(err, &exit) && exit.Err == nil {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// Exit reports err to stderr and exits with its status. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Exit(err error) {
	report(os.Stderr, err)
	os.Exit(Code(err))
}
