// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// airlock converts untrusted documents into safe PDFs.
//
// Usage:
//
//	airlock convert [flags] <document>
//	airlock batch [flags] <document>...
//	airlock check [flags]
//	airlock profiles [name]
//	airlock version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/airlock/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("AIRLOCK_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	initStyles()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "convert":
		err = convertCmd(args, logger)
	case "batch":
		err = batchCmd(args, logger)
	case "check":
		err = checkCmd(args, logger)
	case "profiles":
		err = profilesCmd(args, logger)
	case "version", "--version", "-v":
		fmt.Printf("airlock %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`airlock - Convert untrusted documents into safe PDFs

USAGE
    airlock <command> [flags] [args...]

COMMANDS
    convert   Convert one document to a safe PDF
    batch     Convert several documents, one sandbox at a time
    check     Validate that the environment can run conversions
    profiles  List sandbox profiles, or show one resolved
    version   Show version

EXAMPLES
    # Convert a document; output lands next to it as <name>-safe.pdf
    airlock convert report.docx

    # Convert with a searchable OCR text layer
    airlock convert --ocr-lang=eng scan.pdf

    # Convert a whole folder of attachments
    airlock batch inbox/*.pdf

    # Run against a disposable VM instead of a local container
    airlock convert --provider=vm contract.odt

    # Verify the sandbox stack before first use
    airlock check

ENVIRONMENT
    AIRLOCK_CONFIG             Path to the YAML configuration file
    AIRLOCK_CONTAINER_RUNTIME  Container runtime override (podman, docker)
    AIRLOCK_DEBUG              Enable debug logging

For more information, see: https://github.com/bureau-foundation/airlock
`)
}

// exitError carries a process exit code through the error return of a
// subcommand without printing anything further.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func (e exitError) ExitCode() int { return e.code }
