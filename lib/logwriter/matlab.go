// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logwriter

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/strider-robotics/strider/lib/logserver"
)

// MAT-file level 4 type codes (MOPT with M=0, little-endian; O=0;
// P=0, double; T=0 numeric or 1 text).
const (
	matNumeric int32 = 0
	matText    int32 = 1
)

// matlabEncoder accumulates rows and writes three matrices on finish:
//
//	data         samples x (2+variables): tick, time, values...
//	names        (2+variables) x width text matrix of column names
//	description  1 x len text matrix, when a description is set
//
// Level 4 stores matrices column-major, so nothing can be written before
// the row count is known. Memory grows by 8*(2+variables) bytes per row
// until finish; callers bound a run with a sample limit.
type matlabEncoder struct {
	columns     int
	names       []string
	description string
	cells       []float64 // row-major
	rows        int
}

func (e *matlabEncoder) header(_ io.Writer, options *Options) error {
	e.names = append([]string{"tick", "time"}, options.Variables...)
	e.description = options.Description
	return nil
}

func (e *matlabEncoder) row(_ io.Writer, sample *logserver.Sample) error {
	e.cells = append(e.cells, float64(sample.Tick), sample.Time)
	e.cells = append(e.cells, sample.Values...)
	e.rows++
	return nil
}

func (e *matlabEncoder) finish(w io.Writer) error {
	data := make([]float64, len(e.cells))
	for r := 0; r < e.rows; r++ {
		for c := 0; c < e.columns; c++ {
			data[c*e.rows+r] = e.cells[r*e.columns+c]
		}
	}
	if err := writeMatrix(w, "data", matNumeric, e.rows, e.columns, data); err != nil {
		return err
	}
	if err := writeText(w, "names", e.names); err != nil {
		return err
	}
	if e.description != "" {
		return writeText(w, "description", []string{e.description})
	}
	return nil
}

// writeText writes lines as a space-padded character matrix.
func writeText(w io.Writer, name string, lines []string) error {
	width := 0
	for _, line := range lines {
		width = max(width, len(line))
	}
	rows := len(lines)
	data := make([]float64, rows*width)
	for r, line := range lines {
		for c := 0; c < width; c++ {
			ch := byte(' ')
			if c < len(line) {
				ch = line[c]
			}
			data[c*rows+r] = float64(ch)
		}
	}
	return writeMatrix(w, name, matText, rows, width, data)
}

func writeMatrix(w io.Writer, name string, kind int32, rows, columns int, data []float64) error {
	header := []int32{kind, int32(rows), int32(columns), 0, int32(len(name) + 1)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if _, err := io.WriteString(w, name+"\x00"); err != nil {
		return err
	}
	buffer := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buffer[8*i:], math.Float64bits(v))
	}
	_, err := w.Write(buffer)
	return err
}

// MatrixHeader is the fixed part of a level 4 matrix record.
type MatrixHeader struct {
	Type, Rows, Columns, Imaginary, NameLength int32
}

// ReadMatrix reads one level 4 matrix record: its name, header and
// column-major data.
func ReadMatrix(r io.Reader) (name string, header MatrixHeader, data []float64, err error) {
	if err = binary.Read(r, binary.LittleEndian, &header); err != nil {
		return "", header, nil, err
	}
	raw := make([]byte, header.NameLength)
	if _, err = io.ReadFull(r, raw); err != nil {
		return "", header, nil, err
	}
	name = string(raw[:max(len(raw)-1, 0)])
	data = make([]float64, int(header.Rows)*int(header.Columns))
	if err = binary.Read(r, binary.LittleEndian, data); err != nil {
		return "", header, nil, err
	}
	return name, header, data, nil
}
