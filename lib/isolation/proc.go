// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// procHandle wraps a piped child process with idempotent wait
// semantics and process-group signalling. The runtime and VM
// providers both build on it.
type procHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr *StderrBuffer

	waitOnce sync.Once
	done     chan struct{}
	exitCode int
	waitErr  error
}

// startProc spawns argv with stdin/stdout pipes and stderr captured
// into a ring buffer. The child gets its own process group so Kill
// can take down everything it spawned, and a minimal environment:
// the parent's environment routinely holds secrets, and a sandboxed
// child's /proc view of its own environ is attacker readable once
// the rasterizer is compromised.
func startProc(ctx context.Context, argv []string, extraEnv []string) (*procHandle, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append([]string{"PATH=/usr/local/bin:/usr/bin:/bin"}, extraEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	handle := &procHandle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: NewStderrBuffer(),
		done:   make(chan struct{}),
	}
	go handle.stderr.Capture(stderrPipe)
	return handle, nil
}

func (h *procHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *procHandle) Stdout() io.Reader     { return h.stdout }
func (h *procHandle) Stderr() *StderrBuffer { return h.stderr }

// Wait reaps the child once and broadcasts the result. Safe for
// concurrent use; every caller observes the same exit code.
func (h *procHandle) Wait(ctx context.Context) (int, error) {
	h.waitOnce.Do(func() {
		go func() {
			defer close(h.done)
			err := h.cmd.Wait()
			if err == nil {
				return
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				h.exitCode = exitErr.ExitCode()
				return
			}
			h.waitErr = err
		}()
	})

	select {
	case <-h.done:
		return h.exitCode, h.waitErr
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Terminate sends SIGTERM to the process group.
func (h *procHandle) Terminate() error {
	return h.signalGroup(unix.SIGTERM)
}

// Kill sends SIGKILL to the process group.
func (h *procHandle) Kill() error {
	return h.signalGroup(unix.SIGKILL)
}

// signalGroup signals the child's whole process group. A process
// that is already gone is not an error.
func (h *procHandle) signalGroup(sig syscall.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(h.cmd.Process.Pid)
	if err != nil {
		return nil // already reaped
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signalling process group %d: %w", pgid, err)
	}
	return nil
}
