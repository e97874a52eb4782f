// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// airlock-rasterizer runs inside the gVisor sandbox. It reads one
// untrusted document on stdin, converts it through the LibreOffice /
// GraphicsMagick / poppler toolchain, and writes the pixel stream on
// stdout. Progress goes to stderr as JSON lines. The exit code tells
// the host what went wrong; nothing else it emits is trusted.
//
// With --escape-test it runs the escape detection battery instead,
// reporting whether the sandbox actually blocks what it should.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/airlock/lib/raster"
	"github.com/bureau-foundation/airlock/sandbox"
)

func main() {
	flags := pflag.NewFlagSet("airlock-rasterizer", pflag.ContinueOnError)
	debug := flags.Bool("debug", false, "enable debug logging to stderr")
	escapeTest := flags.Bool("escape-test", false, "run the escape detection battery instead of converting")
	escapeCategory := flags.String("escape-category", "", "restrict --escape-test to one category (network, filesystem, process, privilege)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *escapeTest || *escapeCategory != "" {
		os.Exit(runEscapeTests(*escapeCategory))
	}

	logLevel := slog.LevelInfo
	if *debug || os.Getenv("AIRLOCK_RASTERIZER_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg := raster.Config{
		WorkDir:      "/tmp",
		LibreOffice:  []string{"libreoffice"},
		GM:           []string{"gm"},
		PDFInfo:      []string{"pdfinfo"},
		PDFToPPM:     []string{"pdftoppm"},
		HWPSupported: hwpFilterPresent(),
		Logger:       logger,
	}

	if err := raster.Rasterize(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		logger.Error("rasterization failed", "error", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// runEscapeTests exercises the isolation the rasterizer is supposed to
// be running under: each test attempts something a compromised
// rasterizer would try, and passes when the sandbox blocks it. Meant
// to run through the same entry path as a real conversion, so the
// battery sees exactly the environment a document would.
func runEscapeTests(category string) int {
	runner := sandbox.NewEscapeTestRunner()
	if category != "" {
		runner.RunCategory(context.Background(), category)
	} else {
		runner.RunAll(context.Background())
	}
	runner.PrintResults(os.Stderr)
	if runner.HasFailures() {
		return 1
	}
	return 0
}

// hwpFilterPresent reports whether this image's LibreOffice carries
// the Hancom HWP import filter.
func hwpFilterPresent() bool {
	candidates := []string{
		"/usr/lib/libreoffice/program/libhwplo.so",
		"/usr/lib64/libreoffice/program/libhwplo.so",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
