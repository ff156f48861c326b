// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the supervisor configuration.
//
// Configuration is layered onto [Default] in a fixed order:
//
//  1. Required files, in the order given. YAML, JSON with comments
//     (".json"/".jsonc", normalized with tidwall/jsonc first) or TOML
//     (".toml", decoded with BurntSushi/toml and re-encoded as YAML).
//  2. Optional files. A missing optional file is reported as a warning.
//  3. Inline YAML snippets, typically from repeated --set flags.
//
// Each layer only overrides the keys it mentions; lists replace rather
// than append. Unknown keys are errors. After layering, ${HOME} and
// ${RUN_ID} are expanded in the log file name, [Config.Normalize] repairs
// recoverable values (recording a warning for each) and
// [Config.Validate] rejects the rest.
//
// Environment variables do not override values. The only environment
// input is STRIDER_CONFIG ([EnvironmentVariable]), which [Loader.Files]
// applies when no file is given.
//
// Durations are seconds of mission time, as float64.
package config
