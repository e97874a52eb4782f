// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/bureau-foundation/airlock/lib/raster"
	"github.com/bureau-foundation/airlock/lib/vmproto"
)

// VMConfig configures the disposable-VM provider.
type VMConfig struct {
	// Command is the argv that opens a transport to a fresh guest,
	// for example a qrexec client invocation. The guest speaks the
	// vmproto framing on its stdin/stdout.
	Command []string

	// DevBundlePath, when set, is a guest software bundle streamed
	// to the VM before the handshake so development builds run
	// without reinstalling the guest image. The bundle travels as a
	// big-endian uint32 length followed by the blob.
	DevBundlePath string

	Logger *slog.Logger
}

// VMProvider isolates the rasterizer in a disposable virtual machine
// reached through a spawned transport process. The conversion
// protocol is multiplexed over the transport; the returned handle
// presents the same raw stdin/stdout contract as the container
// provider, with guest progress reports re-emitted as stderr lines.
type VMProvider struct {
	command       []string
	devBundlePath string
	logger        *slog.Logger
}

func NewVMProvider(cfg VMConfig) *VMProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VMProvider{
		command:       cfg.Command,
		devBundlePath: cfg.DevBundlePath,
		logger:        logger,
	}
}

func (p *VMProvider) Name() string { return "vm" }

func (p *VMProvider) Available(ctx context.Context) error {
	if len(p.command) == 0 {
		return fmt.Errorf("no VM transport command configured")
	}
	if _, err := exec.LookPath(p.command[0]); err != nil {
		return fmt.Errorf("VM transport %q not found: %w", p.command[0], err)
	}
	return nil
}

func (p *VMProvider) Start(ctx context.Context, job Job) (Handle, error) {
	proc, err := startProc(ctx, p.command, nil)
	if err != nil {
		return nil, err
	}

	if p.devBundlePath != "" {
		if err := sendDevBundle(proc.Stdin(), p.devBundlePath); err != nil {
			proc.Kill()
			return nil, fmt.Errorf("streaming dev bundle: %w", err)
		}
	}

	stderr := proc.Stderr()
	session := vmproto.NewHostSession(proc.Stdin(), proc.Stdout(), func(report vmproto.Progress) {
		// Keep the host-side stream contract uniform: progress
		// arrives as JSON lines on stderr regardless of provider.
		line := raster.ProgressLine{
			Error:      report.Error,
			Text:       report.Text,
			Percentage: report.Percentage,
		}
		raster.WriteProgressLine(stderr, line)
	})
	if err := session.Begin(job.DocumentID, job.SizeBytes); err != nil {
		proc.Kill()
		return nil, fmt.Errorf("opening VM session: %w", err)
	}

	p.logger.Debug("started disposable VM session", "document", job.DocumentID)
	return &vmHandle{proc: proc, session: session}, nil
}

func sendDevBundle(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(info.Size()))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	return nil
}

// vmHandle adapts a vmproto host session to the provider handle
// contract. Stdin carries document bytes (chunked onto the wire),
// stdout yields the reassembled pixel stream.
type vmHandle struct {
	proc    *procHandle
	session *vmproto.HostSession
}

func (h *vmHandle) Stdin() io.WriteCloser { return h.session.DocWriter() }
func (h *vmHandle) Stdout() io.Reader     { return h.session.PixelReader() }
func (h *vmHandle) Stderr() *StderrBuffer { return h.proc.Stderr() }

// Wait returns the guest's reported exit code once the session ends.
// A transport failure before the guest's Done frame surfaces as an
// error, after the transport process has been reaped.
func (h *vmHandle) Wait(ctx context.Context) (int, error) {
	done := make(chan struct{})
	go func() {
		h.session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	code, sessionErr := h.session.Wait()
	if _, err := h.proc.Wait(ctx); err != nil {
		return 0, err
	}
	if sessionErr != nil {
		return 0, sessionErr
	}
	return code, nil
}

func (h *vmHandle) Terminate() error {
	h.session.Close()
	return h.proc.Terminate()
}

func (h *vmHandle) Kill() error {
	h.session.Close()
	return h.proc.Kill()
}
