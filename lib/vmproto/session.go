// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// DocChunkSize is how much of the document travels per DocChunk
// frame. Small enough to keep guest memory bounded, large enough
// that framing overhead disappears.
const DocChunkSize = 256 * 1024

// ErrSessionClosed is returned by session operations after the
// underlying transport has been torn down.
var ErrSessionClosed = errors.New("vmproto: session closed")

// HostSession drives the host side of a conversion over a vmproto
// transport: handshake, document upload, and demultiplexing of the
// guest's pixel, progress, and exit-code frames.
//
// Wire errors and the guest's exit code surface through
// [HostSession.Wait]; pixel data through [HostSession.PixelReader].
type HostSession struct {
	writeMu sync.Mutex
	w       *Writer
	r       *Reader

	pixelR *io.PipeReader
	pixelW *io.PipeWriter

	progress func(Progress)

	done     chan struct{}
	exitCode int
	runErr   error
}

// NewHostSession creates a session over the transport's write and
// read halves. progress receives each guest progress report; nil
// discards them. Call [HostSession.Begin] before anything else.
func NewHostSession(w io.Writer, r io.Reader, progress func(Progress)) *HostSession {
	pr, pw := io.Pipe()
	return &HostSession{
		w:        NewWriter(w),
		r:        NewReader(r),
		pixelR:   pr,
		pixelW:   pw,
		progress: progress,
		done:     make(chan struct{}),
	}
}

// Begin performs the handshake and announces the document, then
// starts the demultiplexing loop. The guest must answer the Hello
// with its own before any conversion traffic.
func (s *HostSession) Begin(docID string, size int64) error {
	if err := s.send(Hello{Version: ProtocolVersion}); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	envelope, err := s.r.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading guest hello: %w", err)
	}
	if envelope.Kind != KindHello {
		return fmt.Errorf("guest opened with %s, want hello", envelope.Kind)
	}
	hello, err := DecodeBody[Hello](envelope)
	if err != nil {
		return err
	}
	if hello.Version != ProtocolVersion {
		return fmt.Errorf("guest speaks protocol version %d, want %d", hello.Version, ProtocolVersion)
	}

	if err := s.send(ConvertRequest{DocID: docID, Size: size}); err != nil {
		return fmt.Errorf("sending convert request: %w", err)
	}

	go s.demux()
	return nil
}

// DocWriter returns the writer for the document bytes. Writes are
// chunked into DocChunk frames; Close sends the final marker. The
// writer must be closed exactly once.
func (s *HostSession) DocWriter() io.WriteCloser {
	return &docWriter{session: s}
}

// PixelReader returns the reassembled pixel stream. It yields EOF
// after the guest's final PixelChunk, or an error if the transport
// fails mid-stream.
func (s *HostSession) PixelReader() io.Reader {
	return s.pixelR
}

// Done is closed when the guest has reported Done or the transport
// has failed.
func (s *HostSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns the guest's exit
// code. A transport failure before Done yields an error.
func (s *HostSession) Wait() (int, error) {
	<-s.done
	return s.exitCode, s.runErr
}

// Close tears the session down. Safe to call more than once and
// concurrently with Wait.
func (s *HostSession) Close() error {
	s.pixelR.Close()
	return nil
}

func (s *HostSession) send(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.w.WriteMessage(msg)
}

// demux routes guest frames until Done or a transport error. Pixel
// data feeds the pipe; progress reports invoke the callback; Done
// records the exit code and finishes the session.
func (s *HostSession) demux() {
	defer close(s.done)
	for {
		envelope, err := s.r.ReadMessage()
		if err != nil {
			s.runErr = fmt.Errorf("reading guest frame: %w", err)
			s.pixelW.CloseWithError(s.runErr)
			return
		}

		switch envelope.Kind {
		case KindPixelChunk:
			chunk, err := DecodeBody[PixelChunk](envelope)
			if err != nil {
				s.runErr = err
				s.pixelW.CloseWithError(err)
				return
			}
			if len(chunk.Data) > 0 {
				if _, err := s.pixelW.Write(chunk.Data); err != nil {
					// Reader side gone; keep draining so Done still
					// arrives and Wait gets a real exit code.
					continue
				}
			}
			if chunk.Last {
				s.pixelW.Close()
			}

		case KindProgress:
			report, err := DecodeBody[Progress](envelope)
			if err != nil {
				continue
			}
			if s.progress != nil {
				s.progress(*report)
			}

		case KindDone:
			result, err := DecodeBody[Done](envelope)
			if err != nil {
				s.runErr = err
				s.pixelW.CloseWithError(err)
				return
			}
			s.exitCode = result.ExitCode
			s.pixelW.Close()
			return

		default:
			s.runErr = fmt.Errorf("unexpected %s frame from guest", envelope.Kind)
			s.pixelW.CloseWithError(s.runErr)
			return
		}
	}
}

// docWriter chunks document bytes into DocChunk frames.
type docWriter struct {
	session *HostSession
	closed  bool
}

func (w *docWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrSessionClosed
	}
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > DocChunkSize {
			n = DocChunkSize
		}
		if err := w.session.send(DocChunk{Data: p[:n]}); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (w *docWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.session.send(DocChunk{Last: true})
}
