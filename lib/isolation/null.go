// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"io"
	"sync"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

// NullProvider runs the conversion script in-process with no
// isolation at all. It exists for tests and for exercising the host
// pipeline without a container runtime; it must never see untrusted
// documents.
type NullProvider struct {
	// Script plays the rasterizer: read the document from stdin,
	// write a pixel stream to stdout, return an exit code. Nil gets
	// a default that drains stdin and emits two small solid pages.
	Script func(stdin io.Reader, stdout, stderr io.Writer) int
}

func (p *NullProvider) Name() string { return "null" }

func (p *NullProvider) Available(ctx context.Context) error { return nil }

func (p *NullProvider) Start(ctx context.Context, job Job) (Handle, error) {
	script := p.Script
	if script == nil {
		script = defaultScript
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	handle := &nullHandle{
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: NewStderrBuffer(),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(handle.done)
		handle.exitCode = script(stdinR, stdoutW, handle.stderr)
		stdinR.Close()
		stdoutW.Close()
	}()
	return handle, nil
}

// defaultScript drains the document and emits two 9x9 pages of a
// single repeated byte, enough to drive the reconstruction path end
// to end.
func defaultScript(stdin io.Reader, stdout, stderr io.Writer) int {
	if _, err := io.Copy(io.Discard, stdin); err != nil {
		return 1
	}
	encoder := pixels.NewEncoder(stdout)
	if err := encoder.WriteHeader(pixels.Header{Pages: 2}); err != nil {
		return 1
	}
	rgb := make([]byte, 9*9*3)
	for i := range rgb {
		rgb[i] = 'A'
	}
	for range 2 {
		if err := encoder.WritePage(&pixels.Page{Width: 9, Height: 9, RGB: rgb}); err != nil {
			return 1
		}
	}
	return 0
}

type nullHandle struct {
	stdin  *io.PipeWriter
	stdout *io.PipeReader
	stderr *StderrBuffer

	stopOnce sync.Once
	done     chan struct{}
	exitCode int
}

func (h *nullHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *nullHandle) Stdout() io.Reader     { return h.stdout }
func (h *nullHandle) Stderr() *StderrBuffer { return h.stderr }

func (h *nullHandle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Terminate unblocks the script by tearing down its pipes.
func (h *nullHandle) Terminate() error {
	h.stopOnce.Do(func() {
		h.stdin.Close()
		h.stdout.Close()
	})
	return nil
}

func (h *nullHandle) Kill() error {
	return h.Terminate()
}
