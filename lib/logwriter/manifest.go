// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logwriter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/strider-robotics/strider/lib/atomicfile"
)

// ErrDigestMismatch is returned by Verify when a log file's content no
// longer matches its manifest.
var ErrDigestMismatch = errors.New("log file digest mismatch")

// Manifest describes a closed log file.
type Manifest struct {
	File        string    `yaml:"file"`
	Format      string    `yaml:"format"`
	Compression string    `yaml:"compression,omitempty"`
	Description string    `yaml:"description"`
	RunID       string    `yaml:"run_id,omitempty"`
	Created     time.Time `yaml:"created"`
	Variables   []string  `yaml:"variables"`
	Samples     uint64    `yaml:"samples"`
	FirstTime   float64   `yaml:"first_time"`
	LastTime    float64   `yaml:"last_time"`
	Bytes       int64     `yaml:"bytes"`
	Digest      string    `yaml:"blake3"`
}

// ManifestPath returns the sidecar path for the log at path.
func ManifestPath(path string) string { return path + ".manifest.yaml" }

// WriteManifest atomically writes m to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// Verify reads the manifest of the log at path and checks the file's
// size and BLAKE3 digest against it.
func Verify(path string) (Manifest, error) {
	m, err := ReadManifest(ManifestPath(path))
	if err != nil {
		return Manifest{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer file.Close()

	hasher := blake3.New()
	n, err := io.Copy(hasher, file)
	if err != nil {
		return m, fmt.Errorf("hashing %s: %w", path, err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if n != m.Bytes || digest != m.Digest {
		return m, fmt.Errorf("%s: %w (have %d bytes %s, manifest %d bytes %s)",
			path, ErrDigestMismatch, n, digest, m.Bytes, m.Digest)
	}
	return m, nil
}
