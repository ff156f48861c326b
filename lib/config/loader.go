// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file applied when no file is
// given explicitly.
const EnvironmentVariable = "STRIDER_CONFIG"

// Loader applies configuration layers onto Default.
type Loader struct {
	config   *Config
	warnings []string
}

// NewLoader returns a Loader holding the defaults.
func NewLoader() *Loader {
	return &Loader{config: Default()}
}

// Files applies each file in paths in order. With no paths, it applies
// the file named by EnvironmentVariable, if that is set.
func (l *Loader) Files(paths ...string) error {
	if len(paths) == 0 {
		if path := os.Getenv(EnvironmentVariable); path != "" {
			paths = []string{path}
		}
	}
	for _, path := range paths {
		if err := l.File(path); err != nil {
			return err
		}
	}
	return nil
}

// File applies the file at path. The file must exist. The format follows
// the extension: .json and .jsonc are JSON with comments, .toml is TOML,
// and anything else is YAML.
func (l *Loader) File(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	case ".toml":
		if data, err = tomlToYAML(data); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := l.apply(data); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// OptionalFile applies the file at path if it exists and records a
// warning otherwise.
func (l *Loader) OptionalFile(path string) error {
	err := l.File(path)
	if errors.Is(err, os.ErrNotExist) {
		l.warnings = append(l.warnings, fmt.Sprintf("optional config %s not found, skipping", path))
		return nil
	}
	return err
}

// Snippet applies an inline YAML document.
func (l *Loader) Snippet(text string) error {
	if err := l.apply([]byte(text)); err != nil {
		return fmt.Errorf("inline config %q: %w", text, err)
	}
	return nil
}

// tomlToYAML re-encodes a TOML document so that it goes through the same
// strict decoder as the other formats.
func tomlToYAML(data []byte) ([]byte, error) {
	var document map[string]any
	if _, err := toml.Decode(string(data), &document); err != nil {
		return nil, err
	}
	return yaml.Marshal(document)
}

func (l *Loader) apply(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(l.config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Finish assigns a run ID if none was configured, expands variables,
// normalizes and validates. It returns the configuration together with
// every warning recorded while loading.
func (l *Loader) Finish() (*Config, []string, error) {
	if l.config.RunID == "" {
		l.config.RunID = uuid.NewString()
	}
	l.config.expandVariables()
	warnings := append(l.warnings, l.config.Normalize()...)
	if err := l.config.Validate(); err != nil {
		return nil, warnings, err
	}
	return l.config, warnings, nil
}
