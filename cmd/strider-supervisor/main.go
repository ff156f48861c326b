// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/strider-robotics/strider/internal/metrics"
	"github.com/strider-robotics/strider/internal/sit"
	"github.com/strider-robotics/strider/internal/supervisor"
	"github.com/strider-robotics/strider/lib/clock"
	"github.com/strider-robotics/strider/lib/config"
	"github.com/strider-robotics/strider/lib/kinematics"
	"github.com/strider-robotics/strider/lib/logserver"
	"github.com/strider-robotics/strider/lib/module"
	"github.com/strider-robotics/strider/lib/process"
	"github.com/strider-robotics/strider/lib/sim"
	"github.com/strider-robotics/strider/lib/version"
)

// standAngles is the joint posture the simulated legs power up in.
var standAngles = kinematics.Vec3{0, 0.8, -1.6}

// logQueueCapacity bounds each logging task's sample queue.
const logQueueCapacity = 4096

func main() {
	process.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configs     []string
	sets        []string
	overrides   string
	graph       bool
	showVersion bool
	metricsAddr string
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options
	flags := pflag.NewFlagSet("strider-supervisor", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringArrayVarP(&opts.configs, "config", "c", nil, "configuration file (.yaml or .jsonc), repeatable; later files override earlier ones")
	flags.StringArrayVar(&opts.sets, "set", nil, `inline YAML applied after all files, e.g. --set "sit: {hold: 2}"`)
	flags.StringVar(&opts.overrides, "overrides", "", "optional configuration file applied after --config, skipped when missing")
	flags.BoolVar(&opts.graph, "graph", false, "print the phase machines as Graphviz DOT and exit")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.listen)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides logging.level)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, &process.ExitError{Code: 0}
		}
		return nil, &process.ExitError{Code: 2, Err: err}
	}
	if flags.NArg() > 0 {
		return nil, &process.ExitError{Code: 2, Err: fmt.Errorf("unexpected arguments: %v", flags.Args())}
	}
	return &opts, nil
}

// loadConfig applies the configuration layers named by opts.
func loadConfig(opts *options) (*config.Config, []string, error) {
	loader := config.NewLoader()
	if err := loader.Files(opts.configs...); err != nil {
		return nil, nil, err
	}
	if opts.overrides != "" {
		if err := loader.OptionalFile(opts.overrides); err != nil {
			return nil, nil, err
		}
	}
	for _, snippet := range opts.sets {
		if err := loader.Snippet(snippet); err != nil {
			return nil, nil, err
		}
	}
	if opts.logLevel != "" {
		if err := loader.Snippet(fmt.Sprintf("logging: {level: %q}", opts.logLevel)); err != nil {
			return nil, nil, err
		}
	}
	if opts.metricsAddr != "" {
		if err := loader.Snippet(fmt.Sprintf("metrics: {listen: %q}", opts.metricsAddr)); err != nil {
			return nil, nil, err
		}
	}
	return loader.Finish()
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "strider-supervisor %s\n", version.Full())
		return nil
	}

	cfg, warnings, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	stats := metrics.New()
	body := sim.Go2()
	behavior, err := sit.New(cfg.Sit, body, stats)
	if err != nil {
		return err
	}
	if opts.graph {
		return printGraphs(stdout, cfg, behavior)
	}

	logger := newLogger(stderr, cfg.Logging).With("run_id", cfg.RunID)
	slog.SetDefault(logger)
	for _, warning := range warnings {
		logger.Warn("configuration", "warning", warning)
	}
	logger.Info("starting", version.Attr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := module.NewManager(ctx, module.Options{
		Clock:      clock.Real(),
		Logger:     logger,
		StepPeriod: clock.Seconds(cfg.Control.StepPeriod),
		Observer:   stats,
	})
	server := logserver.NewServer(logQueueCapacity)
	if err := host.Add(server, module.ClassTelemetry); err != nil {
		return err
	}
	for _, leg := range sim.NewLegs(body, standAngles) {
		if err := host.Add(leg, module.ClassActuation); err != nil {
			return err
		}
	}
	top, err := supervisor.New(supervisor.Options{
		Config:           cfg,
		Behavior:         behavior,
		Recorder:         stats,
		PipelineObserver: stats,
		LowerPriority:    true,
	})
	if err != nil {
		return err
	}
	if err := host.Add(top, module.ClassSupervisor); err != nil {
		return err
	}
	for _, m := range []module.Module{server, top} {
		if err := host.Activate(m); err != nil {
			return err
		}
	}
	for _, info := range host.Modules() {
		logger.Debug("module registered",
			"name", info.Name, "index", info.Index, "class", info.Class,
			"active", info.Active, "owner", info.Owner, "holding", info.Holding)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(groupCtx)
	defer stopMetrics()
	group.Go(func() error {
		defer stopMetrics()
		return host.Run(groupCtx)
	})
	if cfg.Metrics.Listen != "" {
		listener, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			host.RequestShutdown("metrics listener failed")
			_ = group.Wait()
			_ = host.Remove(top)
			return fmt.Errorf("listening for metrics: %w", err)
		}
		logger.Info("serving metrics", "address", listener.Addr().String())
		group.Go(func() error {
			return stats.Serve(metricsCtx, listener, logger)
		})
	}
	runErr := group.Wait()

	// Removing the supervisor stops the logging pipeline, which drains
	// and closes the data log.
	if err := host.Remove(top); err != nil {
		logger.Error("removing supervisor", "error", err)
	}
	logger.Info("stopped", "cause", context.Cause(host.Context()), "ticks", host.Ticks())
	return runErr
}

// printGraphs writes the DOT graph of each phase machine.
func printGraphs(w io.Writer, cfg *config.Config, behavior *sit.Behavior) error {
	top, err := supervisor.New(supervisor.Options{Config: cfg})
	if err != nil {
		return err
	}
	for _, graph := range []func() (string, error){top.Machine().Graph, behavior.Machine().Graph} {
		dot, err := graph()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, dot)
	}
	return nil
}
