// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// airlock-entry is PID 1 of the outer container. It resolves the
// sandbox profile, generates the OCI bundle for the inner gVisor
// sandbox, and execs runsc so the rasterizer's exit code propagates
// unchanged to the container runtime and from there to the host.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/bureau-foundation/airlock/lib/config"
	"github.com/bureau-foundation/airlock/lib/process"
	"github.com/bureau-foundation/airlock/sandbox"
)

// rasterizerPath is where the container image installs the sandboxed
// binary.
const rasterizerPath = "/usr/local/bin/airlock-rasterizer"

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("AIRLOCK_RASTERIZER_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if err := run(logger); err != nil {
		process.Fatal(err)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	profileName := cfg.Sandbox.Profile
	if env := os.Getenv("AIRLOCK_PROFILE"); env != "" {
		profileName = env
	}

	loader := sandbox.NewProfileLoader()
	loader.SetLogger(logger)
	if err := loader.LoadDefaults(); err != nil {
		return fmt.Errorf("loading built-in profiles: %w", err)
	}
	for _, dir := range cfg.Sandbox.ProfileDirs {
		if err := loader.LoadDirectory(dir); err != nil {
			return fmt.Errorf("loading profiles from %s: %w", dir, err)
		}
	}
	profile, err := loader.Resolve(profileName)
	if err != nil {
		return err
	}
	vars := sandbox.Variables{
		"STATE_DIR": cfg.Sandbox.StateDir,
	}
	profile = vars.ExpandProfile(profile)

	extraEnv := map[string]string{}
	if os.Getenv("AIRLOCK_RASTERIZER_DEBUG") != "" {
		extraEnv["AIRLOCK_RASTERIZER_DEBUG"] = "1"
	}
	spec, err := sandbox.NewBuilder().Build(&sandbox.BuildOptions{
		Profile:  profile,
		Command:  []string{rasterizerPath},
		ExtraEnv: extraEnv,
	})
	if err != nil {
		return fmt.Errorf("building runtime spec: %w", err)
	}

	bundleDir := cfg.Sandbox.BundleDir
	if err := os.MkdirAll(filepath.Join(bundleDir, sandbox.RootfsDir), 0o755); err != nil {
		return fmt.Errorf("creating bundle rootfs: %w", err)
	}
	if err := sandbox.WriteBundle(spec, bundleDir); err != nil {
		return err
	}

	runscPath, err := sandbox.RunscPath()
	if err != nil {
		return err
	}
	args, err := sandbox.RunscArgs(sandbox.RunscOptions{
		StateDir:  cfg.Sandbox.StateDir,
		BundleDir: bundleDir,
		ID:        "rasterizer",
		Debug:     os.Getenv("AIRLOCK_RASTERIZER_DEBUG") != "",
	})
	if err != nil {
		return err
	}

	logger.Debug("handing off to gVisor", "runsc", runscPath, "bundle", bundleDir)

	argv := append([]string{runscPath}, args...)
	if err := syscall.Exec(runscPath, argv, runscEnv()); err != nil {
		return fmt.Errorf("exec %s: %w", runscPath, err)
	}
	return nil
}

// loadConfig uses the baked-in image configuration when present and
// falls back to defaults, so a bare image still runs.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("AIRLOCK_CONFIG")
	if path == "" {
		path = "/etc/airlock/config.yaml"
	}
	if _, err := os.Stat(path); err != nil {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// runscEnv is the environment runsc itself runs with. The sandboxed
// process environment comes from the bundle spec, never from here.
func runscEnv() []string {
	return []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
}
