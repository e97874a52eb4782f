// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/airlock/sandbox"
)

// checkCmd runs pre-flight validation: is the sandbox machinery in
// this environment good enough to convert a document? It probes for
// runsc and user namespaces, resolves the configured profile, checks
// its mount sources, and validates the syscall policy the outer
// container will be started with.
func checkCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML configuration file (default: $AIRLOCK_CONFIG)")
	profileName := flags.String("profile", "", "sandbox profile to validate (default: the configured one)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: airlock check [flags]

Validates the environment without converting anything. Exits 0 when a
conversion would be able to start, 1 otherwise.

Flags:
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	name := *profileName
	if name == "" {
		name = cfg.Sandbox.Profile
	}

	loader, err := newProfileLoader(cfg, logger)
	if err != nil {
		return err
	}
	prof, err := loader.Resolve(name)
	if err != nil {
		return fmt.Errorf("resolving profile %s: %w", name, err)
	}
	vars := sandbox.Variables{"STATE_DIR": cfg.Sandbox.StateDir}
	prof = vars.ExpandProfile(prof)

	caps := sandbox.DetectCapabilities()
	if caps.RunscAvailable {
		fmt.Printf("runsc: %s (%s)\n", caps.RunscPath, caps.RunscVersion)
	}

	seccompPath := cfg.Runtime.SeccompPolicy
	if seccompPath == "" {
		// No policy configured means conversions run under the
		// built-in one; validate that instead of skipping the check.
		dir, err := os.MkdirTemp("", "airlock-check-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		seccompPath, err = sandbox.WriteDefaultSeccompPolicy(dir)
		if err != nil {
			return err
		}
	}

	validator := sandbox.NewValidator()
	validator.ValidateAll(prof, "", seccompPath)
	validator.PrintResults(os.Stdout)

	if validator.HasErrors() {
		return exitError{1}
	}
	if reason := caps.SkipReason(); reason != "" {
		fmt.Printf("Sandbox unavailable: %s\n", reason)
		return exitError{1}
	}
	return nil
}
