// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
)

// RunscOptions configures a runsc invocation.
type RunscOptions struct {
	// StateDir is where runsc keeps container state at runtime
	// (--root). It must be writable by the invoking user and should
	// sit under a directory the profile masks, so the sandboxed
	// process cannot see it.
	StateDir string

	// BundleDir is the bundle directory containing config.json and
	// the rootfs.
	BundleDir string

	// ID is the container ID. It only needs to be unique within
	// StateDir.
	ID string

	// Debug logs runsc internals to stderr.
	Debug bool

	// ExtraFlags are appended verbatim before the run subcommand.
	ExtraFlags []string
}

// RunscArgs builds the argument list for a runsc run invocation.
func RunscArgs(opts RunscOptions) ([]string, error) {
	if opts.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if opts.BundleDir == "" {
		return nil, fmt.Errorf("bundle directory is required")
	}
	if opts.ID == "" {
		return nil, fmt.Errorf("container ID is required")
	}

	args := []string{
		"--rootless=true",
		"--network=none",
		"--root=" + opts.StateDir,
		// DirectFS lets the sandbox open files without going through
		// the gofer process. Disabling it keeps the syscall filter on
		// the sandboxed process as strict as possible, at some I/O
		// cost.
		"--directfs=false",
	}
	if opts.Debug {
		args = append(args, "--debug=true", "--alsologtostderr=true")
	}
	args = append(args, opts.ExtraFlags...)
	args = append(args, "run", "--bundle="+opts.BundleDir, opts.ID)
	return args, nil
}

// RunscPath returns the path to the runsc executable.
func RunscPath() (string, error) {
	// Check common locations.
	paths := []string{
		"/usr/bin/runsc",
		"/usr/local/bin/runsc",
		"/bin/runsc",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("runsc not found in standard locations")
}
