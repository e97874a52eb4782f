// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// airlock-guest is the conversion agent inside a disposable VM. The
// host reaches it over an inter-VM pipe (qrexec or similar); stdin
// and stdout carry the framed session protocol. Each invocation
// serves exactly one conversion: the VM is discarded afterwards, so
// nothing survives a hostile document.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/bureau-foundation/airlock/lib/process"
	"github.com/bureau-foundation/airlock/lib/vmproto"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("AIRLOCK_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	rasterizer := os.Getenv("AIRLOCK_RASTERIZER")
	if rasterizer == "" {
		rasterizer = "airlock-rasterizer"
	}

	convert := func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
		return runRasterizer(ctx, rasterizer, stdin, stdout, stderr, logger)
	}

	if err := vmproto.ServeGuest(context.Background(), os.Stdin, os.Stdout, convert); err != nil {
		process.Fatal(err)
	}
}

// runRasterizer spawns the local rasterizer and reports its exit
// code. Spawn failures map to 1, the generic conversion error.
func runRasterizer(ctx context.Context, path string, stdin io.Reader, stdout, stderr io.Writer, logger *slog.Logger) int {
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if os.Getenv("AIRLOCK_RASTERIZER_DEBUG") != "" {
		cmd.Env = append(os.Environ(), "AIRLOCK_RASTERIZER_DEBUG=1")
	}

	logger.Debug("starting rasterizer", "path", path)
	err := cmd.Run()
	if err == nil {
		return 0
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	logger.Error("rasterizer failed to start", "error", err)
	return 1
}
