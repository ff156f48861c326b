// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// strider-logdump checks a data log against its manifest and prints raw
// logs in the ascii format.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/strider-robotics/strider/lib/logwriter"
	"github.com/strider-robotics/strider/lib/process"
	"github.com/strider-robotics/strider/lib/version"
)

func main() {
	process.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("strider-logdump", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	verifyOnly := flags.Bool("verify", false, "check the manifest digest and print a summary, without dumping samples")
	skipVerify := flags.Bool("no-verify", false, "dump without checking the manifest")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}
	if *showVersion {
		fmt.Fprintf(stdout, "strider-logdump %s\n", version.Info())
		return nil
	}
	if flags.NArg() != 1 {
		return &process.ExitError{Code: 2, Err: errors.New("usage: strider-logdump [flags] LOG")}
	}
	path := flags.Arg(0)

	if !*skipVerify {
		manifest, err := logwriter.Verify(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "%s: %s, %d samples over [%g, %g], %d variables, run %s\n",
			path, manifest.Format, manifest.Samples, manifest.FirstTime, manifest.LastTime,
			len(manifest.Variables), manifest.RunID)
	}
	if *verifyOnly {
		return nil
	}
	return dump(path, stdout)
}

func dump(path string, w io.Writer) error {
	reader, err := logwriter.OpenRaw(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	if err := logwriter.DumpText(reader, w); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
