// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logwriter writes log samples to files in one of several
// formats and seals each finished file with a manifest.
//
// Every writer counts and hashes (BLAKE3) the bytes it puts on disk. On
// Close the data file is synced and a sidecar manifest,
// "<file>.manifest.yaml", is written atomically with the format,
// variables, sample count, time span and digest. A manifest therefore
// exists only for a log that was closed cleanly, and Verify can later
// confirm the data file is intact.
package logwriter

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/strider-robotics/strider/lib/logserver"
)

// ErrClosed is returned by AppendLine after Close.
var ErrClosed = errors.New("log writer closed")

// Writer appends samples to a log file.
type Writer interface {
	AppendLine(sample *logserver.Sample) error
	Close() error
}

// Options describes the log file to create.
type Options struct {
	Path        string
	Format      Format
	Compression Compression // raw format only
	Variables   []string
	Description string
	RunID       string
	Created     time.Time
}

// encoder is the format-specific part of a File.
type encoder interface {
	header(w io.Writer, options *Options) error
	row(w io.Writer, sample *logserver.Sample) error
	// finish writes anything held back until the end.
	finish(w io.Writer) error
}

// File is a log file being written.
type File struct {
	options  Options
	file     *os.File
	counter  *countingWriter
	stream   io.WriteCloser
	buffered *bufio.Writer
	encoder  encoder
	manifest Manifest
	closed   bool
}

// countingWriter hashes and counts everything written through it.
type countingWriter struct {
	w      io.Writer
	hasher *blake3.Hasher
	n      int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.hasher.Write(p[:n])
	c.n += int64(n)
	return n, err
}

// New creates the file at options.Path and writes the format header.
// Compression applies to the raw format only and is ignored otherwise.
func New(options Options) (*File, error) {
	if options.Format == "" {
		options.Format = DefaultFormat
	}
	var enc encoder
	switch options.Format {
	case FormatASCII:
		enc = &asciiEncoder{}
	case FormatRaw:
		enc = &rawEncoder{}
	case FormatMatlab:
		enc = &matlabEncoder{columns: 2 + len(options.Variables)}
	default:
		return nil, fmt.Errorf("unsupported log format %q", options.Format)
	}
	if options.Format != FormatRaw {
		options.Compression = CompressionNone
	}

	file, err := os.OpenFile(options.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	counter := &countingWriter{w: file, hasher: blake3.New()}

	var below io.Writer = counter
	if options.Format == FormatRaw {
		// The prefix stays uncompressed so readers can pick the
		// decompressor.
		if _, err := counter.Write(rawPrefix(options.Compression)); err != nil {
			file.Close()
			return nil, fmt.Errorf("writing log prefix: %w", err)
		}
	}
	stream, err := compressor(below, options.Compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	f := &File{
		options:  options,
		file:     file,
		counter:  counter,
		stream:   stream,
		buffered: bufio.NewWriter(stream),
		encoder:  enc,
		manifest: Manifest{
			File:        options.Path,
			Format:      string(options.Format),
			Description: options.Description,
			RunID:       options.RunID,
			Variables:   append([]string(nil), options.Variables...),
			Created:     options.Created,
		},
	}
	if options.Format == FormatRaw {
		f.manifest.Compression = options.Compression.String()
	}
	if err := enc.header(f.buffered, &f.options); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing log header: %w", err)
	}
	return f, nil
}

// AppendLine appends one sample. The sample's value count must match
// the variable count.
func (f *File) AppendLine(sample *logserver.Sample) error {
	if f.closed {
		return ErrClosed
	}
	if len(sample.Values) != len(f.options.Variables) {
		return fmt.Errorf("sample has %d values for %d variables", len(sample.Values), len(f.options.Variables))
	}
	if err := f.encoder.row(f.buffered, sample); err != nil {
		return fmt.Errorf("appending sample %d: %w", sample.Tick, err)
	}
	if f.manifest.Samples == 0 {
		f.manifest.FirstTime = sample.Time
	}
	f.manifest.LastTime = sample.Time
	f.manifest.Samples++
	return nil
}

// Close flushes the file, syncs it and writes the manifest. Calling it
// again is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	err := f.encoder.finish(f.buffered)
	if err == nil {
		err = f.buffered.Flush()
	}
	if closeErr := f.stream.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = f.file.Sync()
	}
	if closeErr := f.file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}

	f.manifest.Bytes = f.counter.n
	f.manifest.Digest = hex.EncodeToString(f.counter.hasher.Sum(nil))
	return WriteManifest(ManifestPath(f.options.Path), &f.manifest)
}

// Manifest returns the manifest as of the last AppendLine or Close.
func (f *File) Manifest() Manifest { return f.manifest }
