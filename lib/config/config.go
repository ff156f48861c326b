// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/strider-robotics/strider/lib/logwriter"
)

// Config is the complete supervisor configuration.
type Config struct {
	// RunID tags log files and manifests. Generated when empty.
	RunID string `yaml:"run_id"`

	Logging    LoggingConfig    `yaml:"logging"`
	Control    ControlConfig    `yaml:"control"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Sit        SitConfig        `yaml:"sit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text or json.
	Format string `yaml:"format"`
}

// ControlConfig configures the control loop.
type ControlConfig struct {
	// StepPeriod is the control period in seconds. Default: 0.002.
	StepPeriod float64 `yaml:"step_period"`

	// Settle is how long the supervisor waits in its initial phase
	// before engaging the behavior. Default: 0.1.
	Settle float64 `yaml:"settle"`
}

// SupervisorConfig configures the orchestrator.
type SupervisorConfig struct {
	// ExitTime requests shutdown once mission time reaches it. Zero
	// disables the deadline.
	ExitTime float64 `yaml:"exit_time"`

	// ActiveDuration bounds the active phase. Zero keeps the behavior
	// engaged until shutdown.
	ActiveDuration float64 `yaml:"active_duration"`

	// ExitGrace is how long the exit phase lasts before shutdown is
	// requested. Default: 1.
	ExitGrace float64 `yaml:"exit_grace"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the local data log.
type LogConfig struct {
	Enable bool `yaml:"enable"`

	// Start is the mission time at which sampling begins.
	Start float64 `yaml:"start"`

	// FileName is the log path. ${HOME} and ${RUN_ID} are expanded.
	// Default: supervisor.log.
	FileName string `yaml:"file_name"`

	// Period samples every Period control cycles. Default: 1.
	Period int `yaml:"period"`

	// FileFormat is ascii, raw or matlab. Unknown values fall back to
	// ascii. A matlab log is held in memory until it closes, so it
	// should be bounded with MaxSamples.
	FileFormat string `yaml:"file_format"`

	// Compression is none, lz4 or zstd. Raw format only.
	Compression string `yaml:"compression"`

	// MaxSamples ends the log after that many samples. Zero is
	// unbounded.
	MaxSamples int `yaml:"max_samples"`

	// Vars are the variables to log, in column order. Empty names are
	// skipped; an empty list disables logging.
	Vars []string `yaml:"vars"`
}

// SitConfig configures the sit behavior.
type SitConfig struct {
	// Wait is the time spent holding the standing posture. Default: 3.
	Wait float64 `yaml:"wait"`

	// Transition is the duration of the joint-space move. Default: 4.
	Transition float64 `yaml:"transition"`

	// Hold is the time spent in the sitting posture before the behavior
	// is done. Zero holds indefinitely.
	Hold float64 `yaml:"hold"`

	// Origin is the standing foot offset from each hip; its y
	// component is mirrored between even and odd legs.
	Origin [3]float64 `yaml:"origin"`

	// Posture is the sitting joint angles for leg 0: hip abduction, hip
	// flexion, knee.
	Posture [3]float64 `yaml:"posture"`

	// Abduction is mirrored (abduction sign flips between even and odd
	// legs) or uniform.
	Abduction string `yaml:"abduction"`

	// TransitionGuard, when set, replaces the Transition timeout with
	// an expression over elapsed, for example "elapsed > 4.5".
	TransitionGuard string `yaml:"transition_guard"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP listen address. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Abduction policies.
const (
	AbductionMirrored = "mirrored"
	AbductionUniform  = "uniform"
)

// Default returns the configuration every layer is applied onto.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "auto"},
		Control: ControlConfig{StepPeriod: 0.002, Settle: 0.1},
		Supervisor: SupervisorConfig{
			ExitGrace: 1,
			Log: LogConfig{
				FileName:   "supervisor.log",
				Period:     1,
				FileFormat: string(logwriter.FormatASCII),
			},
		},
		Sit: SitConfig{
			Wait:       3,
			Transition: 4,
			Origin:     [3]float64{-0.05, 0.12, -0.26},
			Posture:    [3]float64{0.5, 1.2, -2.7},
			Abduction:  AbductionMirrored,
		},
	}
}

// Normalize repairs recoverable values and returns a warning for each
// repair.
func (c *Config) Normalize() []string {
	var warnings []string

	vars := c.Supervisor.Log.Vars[:0:0]
	for i, name := range c.Supervisor.Log.Vars {
		name = strings.TrimSpace(name)
		if name == "" {
			warnings = append(warnings, fmt.Sprintf("supervisor.log.vars[%d] is empty, skipping", i))
			continue
		}
		vars = append(vars, name)
	}
	c.Supervisor.Log.Vars = vars

	format, ok := logwriter.ParseFormat(c.Supervisor.Log.FileFormat)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unknown log format %q, using %s", c.Supervisor.Log.FileFormat, format))
	}
	c.Supervisor.Log.FileFormat = string(format)

	if c.Supervisor.Log.Period < 1 {
		warnings = append(warnings, fmt.Sprintf("supervisor.log.period %d is below 1, using 1", c.Supervisor.Log.Period))
		c.Supervisor.Log.Period = 1
	}

	compression := strings.TrimSpace(c.Supervisor.Log.Compression)
	if compression != "" && compression != "none" && format != logwriter.FormatRaw {
		warnings = append(warnings, fmt.Sprintf("compression %q applies to raw logs only, ignoring", compression))
		c.Supervisor.Log.Compression = ""
	}

	if c.Supervisor.Log.Enable && format == logwriter.FormatMatlab && c.Supervisor.Log.MaxSamples == 0 {
		warnings = append(warnings, "matlab logs are buffered in memory until closed and supervisor.log.max_samples is unbounded")
	}

	if c.Supervisor.Log.Enable && len(c.Supervisor.Log.Vars) == 0 {
		warnings = append(warnings, "supervisor.log.enable is set but supervisor.log.vars is empty, logging disabled")
	}
	return warnings
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.format %q", c.Logging.Format))
	}

	if c.Control.StepPeriod <= 0 {
		errs = append(errs, fmt.Errorf("control.step_period must be positive, got %g", c.Control.StepPeriod))
	}
	nonNegative := map[string]float64{
		"control.settle":             c.Control.Settle,
		"supervisor.exit_time":       c.Supervisor.ExitTime,
		"supervisor.active_duration": c.Supervisor.ActiveDuration,
		"supervisor.exit_grace":      c.Supervisor.ExitGrace,
		"supervisor.log.start":       c.Supervisor.Log.Start,
		"sit.wait":                   c.Sit.Wait,
		"sit.transition":             c.Sit.Transition,
		"sit.hold":                   c.Sit.Hold,
	}
	for _, key := range slices.Sorted(maps.Keys(nonNegative)) {
		if nonNegative[key] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %g", key, nonNegative[key]))
		}
	}
	if c.Supervisor.Log.MaxSamples < 0 {
		errs = append(errs, fmt.Errorf("supervisor.log.max_samples must not be negative"))
	}
	if c.Supervisor.Log.Enable && c.Supervisor.Log.FileName == "" {
		errs = append(errs, errors.New("supervisor.log.file_name is required when logging is enabled"))
	}
	if _, err := logwriter.ParseCompression(c.Supervisor.Log.Compression); err != nil {
		errs = append(errs, fmt.Errorf("supervisor.log.compression: %w", err))
	}
	if c.Sit.Abduction != AbductionMirrored && c.Sit.Abduction != AbductionUniform {
		errs = append(errs, fmt.Errorf("invalid sit.abduction %q (want %s or %s)", c.Sit.Abduction, AbductionMirrored, AbductionUniform))
	}

	return errors.Join(errs...)
}

// expandVariables expands ${VAR} and ${VAR:-default} in the log file
// name.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":   os.Getenv("HOME"),
		"RUN_ID": c.RunID,
	}
	c.Supervisor.Log.FileName = expandVars(c.Supervisor.Log.FileName, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${NAME} with vars[NAME] and ${NAME:-default} with
// the default when NAME is unset or empty.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := vars[parts[1]]; value != "" {
			return value
		}
		return parts[2]
	})
}
