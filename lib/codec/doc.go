// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by everything that
// writes or reads binary ("raw") log streams.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same header and samples always produce the same bytes, so the digest
// recorded in a log manifest is reproducible.
//
// A raw log is a CBOR sequence (RFC 8742) written with a stream encoder:
//
//	encoder := codec.NewEncoder(w)
//	encoder.Encode(header)
//	encoder.Encode(row)
//
// and read back item by item with codec.NewDecoder.
//
// Types serialized only as CBOR use `cbor` struct tags.
package codec
