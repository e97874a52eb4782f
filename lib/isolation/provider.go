// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Timeouts for the teardown ladder and exit-code collection. These
// bound how long a hostile or wedged sandbox can hold host resources
// after the driver has decided the job is over.
const (
	// GraceTimeout is how long Terminate gets to work before the
	// ladder escalates to Kill.
	GraceTimeout = 15 * time.Second

	// ForceTimeout is how long Kill gets before the ladder gives up
	// and reports a stuck sandbox.
	ForceTimeout = 5 * time.Second

	// TimeoutKill bounds the container runtime's own kill command.
	TimeoutKill = 5 * time.Second

	// ExitWait is how long to wait for an exit code after an I/O
	// error before declaring the exit status unknown.
	ExitWait = 15 * time.Second
)

// Job identifies one conversion to a provider.
type Job struct {
	// DocumentID names the job in container names and logs. It is
	// host-generated, never derived from untrusted input.
	DocumentID string

	// SizeBytes is the document size, for guest-side timeout
	// budgeting in the VM transport.
	SizeBytes int64

	// Debug enables rasterizer debug logging inside the sandbox.
	Debug bool
}

// Handle is one running sandboxed rasterizer. The driver writes the
// document to Stdin, reads the pixel stream from Stdout, and must
// always run the [EnsureStop] ladder before reporting any terminal
// state.
type Handle interface {
	// Stdin is the document sink. The driver closes it after the
	// last byte so the rasterizer sees EOF.
	Stdin() io.WriteCloser

	// Stdout is the pixel stream source.
	Stdout() io.Reader

	// Stderr is the ring-buffered capture of the rasterizer's
	// stderr (progress JSON and toolchain noise). Sanitize before
	// logging any of it.
	Stderr() *StderrBuffer

	// Wait blocks until the sandbox exits and returns its exit
	// code. Idempotent and safe for concurrent use; every caller
	// sees the same result. The context bounds only this call, not
	// the sandbox.
	Wait(ctx context.Context) (int, error)

	// Terminate requests a polite stop: runtime kill command,
	// SIGTERM, or transport EOF depending on the provider.
	Terminate() error

	// Kill forcefully destroys the sandbox (SIGKILL to the process
	// group or equivalent).
	Kill() error
}

// Provider creates sandboxed rasterizer instances. Implementations
// are safe for sequential reuse across jobs; each Start returns a
// context that shares nothing with previous jobs.
type Provider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Available reports whether the provider can run on this host
	// (runtime installed, image present, client reachable). An
	// error describes what is missing.
	Available(ctx context.Context) error

	// Start spawns a fresh sandbox for one job.
	Start(ctx context.Context, job Job) (Handle, error)
}

// ErrStopTimeout is wrapped by EnsureStop when a sandbox survives
// the full ladder.
var ErrStopTimeout = fmt.Errorf("sandbox did not stop after SIGKILL")
