// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logwriter

import (
	"io"
	"strconv"
	"strings"

	"github.com/strider-robotics/strider/lib/logserver"
)

// asciiEncoder writes
//
//	# <description>
//	# run <id>
//	tick	time	<var>	...
//	<tick>	<time>	<value>	...
//
// with values in shortest round-trip decimal form.
type asciiEncoder struct {
	line []byte
}

func (e *asciiEncoder) header(w io.Writer, options *Options) error {
	var b strings.Builder
	if options.Description != "" {
		b.WriteString("# " + options.Description + "\n")
	}
	if options.RunID != "" {
		b.WriteString("# run " + options.RunID + "\n")
	}
	b.WriteString("tick\ttime")
	for _, name := range options.Variables {
		b.WriteString("\t" + name)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func (e *asciiEncoder) row(w io.Writer, sample *logserver.Sample) error {
	line := strconv.AppendUint(e.line[:0], sample.Tick, 10)
	line = append(line, '\t')
	line = strconv.AppendFloat(line, sample.Time, 'g', -1, 64)
	for _, v := range sample.Values {
		line = append(line, '\t')
		line = strconv.AppendFloat(line, v, 'g', -1, 64)
	}
	line = append(line, '\n')
	e.line = line
	_, err := w.Write(line)
	return err
}

func (e *asciiEncoder) finish(io.Writer) error { return nil }
