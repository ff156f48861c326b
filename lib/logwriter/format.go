// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logwriter

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format selects the on-disk layout of a log file.
type Format string

const (
	// FormatASCII is tab-separated text with a commented header.
	FormatASCII Format = "ascii"

	// FormatRaw is a CBOR sequence: one header record, then one record
	// per sample, optionally compressed.
	FormatRaw Format = "raw"

	// FormatMatlab is a MAT-file (level 4) holding a data matrix and
	// the column names. It is written in one piece on Close.
	FormatMatlab Format = "matlab"
)

// DefaultFormat is used for empty or unrecognized format tags.
const DefaultFormat = FormatASCII

// ParseFormat maps a configuration tag to a Format. Unknown tags map to
// DefaultFormat with ok false so the caller can warn.
func ParseFormat(tag string) (format Format, ok bool) {
	switch Format(strings.ToLower(strings.TrimSpace(tag))) {
	case FormatASCII:
		return FormatASCII, true
	case FormatRaw:
		return FormatRaw, true
	case FormatMatlab:
		return FormatMatlab, true
	}
	return DefaultFormat, false
}

// Compression identifies the stream compression of a raw log. The
// numeric values are stored in the raw file prefix and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// ParseCompression parses a compression name. The empty string is none.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}

// nopCloser adapts a plain writer for the uncompressed case.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// compressor wraps w in a streaming compressor. Closing the result
// flushes the compressed stream but does not close w.
func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	}
	return nil, fmt.Errorf("unsupported compression %s", c)
}

// decompressor wraps r in the streaming decompressor matching c.
func decompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unsupported compression %s", c)
}
