// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logwriter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/strider-robotics/strider/lib/codec"
	"github.com/strider-robotics/strider/lib/logserver"
)

// rawMagic opens every raw log. The byte after it is the Compression of
// the rest of the file.
var rawMagic = []byte("STRLOG1")

func rawPrefix(c Compression) []byte {
	return append(append([]byte(nil), rawMagic...), byte(c))
}

// RawHeader is the first record of a raw log.
type RawHeader struct {
	Version     int      `cbor:"version"`
	Description string   `cbor:"description"`
	RunID       string   `cbor:"run_id,omitempty"`
	Created     int64    `cbor:"created_unix_nano"`
	Variables   []string `cbor:"variables"`
}

// rawRow is one sample record, encoded as a CBOR array.
type rawRow struct {
	_      struct{} `cbor:",toarray"`
	Tick   uint64
	Time   float64
	Values []float64
}

type rawEncoder struct {
	encoder *codec.Encoder
}

func (e *rawEncoder) header(w io.Writer, options *Options) error {
	e.encoder = codec.NewEncoder(w)
	var created int64
	if !options.Created.IsZero() {
		created = options.Created.UnixNano()
	}
	return e.encoder.Encode(RawHeader{
		Version:     1,
		Description: options.Description,
		RunID:       options.RunID,
		Created:     created,
		Variables:   options.Variables,
	})
}

func (e *rawEncoder) row(_ io.Writer, sample *logserver.Sample) error {
	return e.encoder.Encode(rawRow{Tick: sample.Tick, Time: sample.Time, Values: sample.Values})
}

func (e *rawEncoder) finish(io.Writer) error { return nil }

// RawReader reads a raw log back.
type RawReader struct {
	file    *os.File
	stream  io.ReadCloser
	decoder *codec.Decoder
	header  RawHeader
}

// OpenRaw opens the raw log at path and reads its header.
func OpenRaw(path string) (*RawReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewReader(file)
	prefix := make([]byte, len(rawMagic)+1)
	if _, err := io.ReadFull(buffered, prefix); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: reading prefix: %w", path, err)
	}
	if !bytes.Equal(prefix[:len(rawMagic)], rawMagic) {
		file.Close()
		return nil, fmt.Errorf("%s: not a raw log", path)
	}
	stream, err := decompressor(buffered, Compression(prefix[len(rawMagic)]))
	if err != nil {
		file.Close()
		return nil, err
	}
	r := &RawReader{file: file, stream: stream, decoder: codec.NewDecoder(stream)}
	if err := r.decoder.Decode(&r.header); err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: reading header: %w", path, err)
	}
	return r, nil
}

// Header returns the log's header record.
func (r *RawReader) Header() RawHeader { return r.header }

// Next returns the next sample, or io.EOF after the last one.
func (r *RawReader) Next() (*logserver.Sample, error) {
	var row rawRow
	if err := r.decoder.Decode(&row); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &logserver.Sample{Tick: row.Tick, Time: row.Time, Values: row.Values}, nil
}

// Close releases the file.
func (r *RawReader) Close() error {
	r.stream.Close()
	return r.file.Close()
}

// DumpText writes the raw log read by r to w in the ascii format.
func DumpText(r *RawReader, w io.Writer) error {
	out := bufio.NewWriter(w)
	encoder := &asciiEncoder{}
	header := r.Header()
	options := &Options{Description: header.Description, RunID: header.RunID, Variables: header.Variables}
	if err := encoder.header(out, options); err != nil {
		return err
	}
	for {
		sample, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out.Flush()
		}
		if err != nil {
			return err
		}
		if err := encoder.row(out, sample); err != nil {
			return err
		}
	}
}
