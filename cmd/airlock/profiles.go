// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/airlock/lib/config"
	"github.com/bureau-foundation/airlock/sandbox"
)

// profilesCmd lists known sandbox profiles, or shows one resolved
// profile in full when a name is given.
func profilesCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("profiles", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML configuration file (default: $AIRLOCK_CONFIG)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: airlock profiles [flags] [name]

Without a name, lists every profile found in the configured profile
directories and the standard search paths. With a name, resolves the
profile (inheritance applied) and prints its full contents.

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

	loader, err := newProfileLoader(cfg, logger)
	if err != nil {
		return err
	}

	if flags.NArg() >= 1 {
		return showProfile(loader, flags.Arg(0))
	}

	fmt.Println("Available profiles:")
	for _, name := range loader.List() {
		prof, err := loader.Resolve(name)
		if err != nil {
			fmt.Printf("  %s (error: %v)\n", name, err)
			continue
		}
		marker := " "
		if name == cfg.Sandbox.Profile {
			marker = "*"
		}
		fmt.Printf("%s %s - %s\n", marker, name, prof.Description)
	}
	return nil
}

// newProfileLoader builds a loader holding the built-in profiles plus
// everything found in the configured profile directories, falling back
// to the standard search paths when none are configured.
func newProfileLoader(cfg *config.Config, logger *slog.Logger) (*sandbox.ProfileLoader, error) {
	loader := sandbox.NewProfileLoader()
	loader.SetLogger(logger)
	if err := loader.LoadDefaults(); err != nil {
		return nil, fmt.Errorf("loading built-in profiles: %w", err)
	}
	dirs := cfg.Sandbox.ProfileDirs
	if len(dirs) == 0 {
		dirs = sandbox.ConfigSearchPaths()
	}
	for _, dir := range dirs {
		if err := loader.LoadDirectory(dir); err != nil {
			return nil, fmt.Errorf("loading profiles from %s: %w", dir, err)
		}
	}
	return loader, nil
}

func showProfile(loader *sandbox.ProfileLoader, name string) error {
	prof, err := loader.Resolve(name)
	if err != nil {
		return err
	}

	fmt.Printf("Profile: %s\n", prof.Name)
	fmt.Printf("Description: %s\n", prof.Description)
	fmt.Println()

	fmt.Println("Namespaces:")
	fmt.Printf("  PID: %v\n", prof.Namespaces.PID)
	fmt.Printf("  Network: %v\n", prof.Namespaces.Network)
	fmt.Printf("  IPC: %v\n", prof.Namespaces.IPC)
	fmt.Printf("  UTS: %v\n", prof.Namespaces.UTS)
	fmt.Printf("  Mount: %v\n", prof.Namespaces.Mount)
	fmt.Println()

	fmt.Println("Security:")
	fmt.Printf("  UID: %d\n", prof.Security.UID)
	fmt.Printf("  GID: %d\n", prof.Security.GID)
	fmt.Printf("  No New Privileges: %v\n", prof.Security.NoNewPrivileges)
	if prof.Security.SeccompPolicy != "" {
		fmt.Printf("  Seccomp Policy: %s\n", prof.Security.SeccompPolicy)
	}
	fmt.Println()

	if prof.Resources.HasLimits() {
		fmt.Println("Resources:")
		fmt.Printf("  Open Files: %d\n", prof.Resources.OpenFiles)
		fmt.Println()
	}

	fmt.Println("Filesystem:")
	for _, mount := range prof.Filesystem {
		switch mount.Type {
		case sandbox.MountTypeTmpfs:
			fmt.Printf("  tmpfs %s\n", mount.Dest)
		case sandbox.MountTypeProc:
			fmt.Printf("  proc  %s\n", mount.Dest)
		default:
			mode := mount.Mode
			if mode == "" {
				mode = sandbox.MountModeRO
			}
			fmt.Printf("  bind  %s -> %s (%s)\n", mount.Source, mount.Dest, mode)
		}
	}

	if len(prof.Environment) > 0 || len(prof.ForwardEnv) > 0 {
		fmt.Println()
		fmt.Println("Environment:")
		for key, value := range prof.Environment {
			fmt.Printf("  %s=%s\n", key, value)
		}
		for _, key := range prof.ForwardEnv {
			fmt.Printf("  %s (forwarded from host)\n", key)
		}
	}
	return nil
}
