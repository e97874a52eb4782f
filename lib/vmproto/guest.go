// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PixelChunkSize is how much pixel data travels per PixelChunk frame.
const PixelChunkSize = 1024 * 1024

// ConvertFunc is the guest's conversion entry point: the document on
// stdin, the pixel stream on stdout, progress JSON lines on stderr.
// The return value is the rasterizer exit code. It matches the shape
// of the rasterizer pipeline so the guest agent is a thin adapter.
type ConvertFunc func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int

// ServeGuest runs the guest side of one conversion session: answers
// the handshake, feeds arriving DocChunks to convert's stdin, and
// streams convert's output back as PixelChunk, Progress, and Done
// frames. It returns after sending Done, or with an error if the
// transport fails first.
func ServeGuest(ctx context.Context, r io.Reader, w io.Writer, convert ConvertFunc) error {
	guest := &guestSession{w: NewWriter(w), r: NewReader(r)}
	return guest.serve(ctx, convert)
}

type guestSession struct {
	writeMu sync.Mutex
	w       *Writer
	r       *Reader
}

func (g *guestSession) send(msg any) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.w.WriteMessage(msg)
}

func (g *guestSession) serve(ctx context.Context, convert ConvertFunc) error {
	envelope, err := g.r.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading host hello: %w", err)
	}
	if envelope.Kind != KindHello {
		return fmt.Errorf("host opened with %s, want hello", envelope.Kind)
	}
	hello, err := DecodeBody[Hello](envelope)
	if err != nil {
		return err
	}
	if hello.Version != ProtocolVersion {
		return fmt.Errorf("host speaks protocol version %d, want %d", hello.Version, ProtocolVersion)
	}
	if err := g.send(Hello{Version: ProtocolVersion}); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	envelope, err = g.r.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading convert request: %w", err)
	}
	if envelope.Kind != KindConvertRequest {
		return fmt.Errorf("expected convert request, got %s", envelope.Kind)
	}
	if _, err := DecodeBody[ConvertRequest](envelope); err != nil {
		return err
	}

	// Document pipe: the frame loop writes, convert reads.
	docR, docW := io.Pipe()
	// Pixel pipe: convert writes, the chunker reads.
	pixelR, pixelW := io.Pipe()
	// Progress pipe: convert writes JSON lines, the relay reads.
	progressR, progressW := io.Pipe()

	exitCode := make(chan int, 1)
	go func() {
		code := convert(ctx, docR, pixelW, progressW)
		pixelW.Close()
		progressW.Close()
		exitCode <- code
	}()

	var relay sync.WaitGroup
	relay.Add(2)

	var pixelErr error
	go func() {
		defer relay.Done()
		pixelErr = g.relayPixels(pixelR)
	}()
	go func() {
		defer relay.Done()
		g.relayProgress(progressR)
	}()

	// Feed DocChunks into the document pipe until the Last marker.
	// The conversion may finish (or fail) without consuming all input
	// — a pipe write error is expected then, not fatal.
	feedErr := g.feedDocument(docW)

	relay.Wait()
	code := <-exitCode

	if err := g.send(Done{ExitCode: code}); err != nil {
		return fmt.Errorf("sending done: %w", err)
	}
	if feedErr != nil {
		return feedErr
	}
	return pixelErr
}

// feedDocument copies arriving DocChunk frames into the document
// pipe. Returns nil once the Last marker arrives; a transport error
// is returned after closing the pipe so the conversion can still
// finish with what it has.
func (g *guestSession) feedDocument(docW *io.PipeWriter) error {
	for {
		envelope, err := g.r.ReadMessage()
		if err != nil {
			docW.CloseWithError(err)
			return fmt.Errorf("reading document chunk: %w", err)
		}
		if envelope.Kind != KindDocChunk {
			err := fmt.Errorf("expected document chunk, got %s", envelope.Kind)
			docW.CloseWithError(err)
			return err
		}
		chunk, err := DecodeBody[DocChunk](envelope)
		if err != nil {
			docW.CloseWithError(err)
			return err
		}
		if len(chunk.Data) > 0 {
			// A closed read side means the conversion stopped
			// reading; drain the remaining chunks without error.
			_, _ = docW.Write(chunk.Data)
		}
		if chunk.Last {
			docW.Close()
			return nil
		}
	}
}

// relayPixels chunks the conversion's pixel stream into PixelChunk
// frames, marking the last one.
func (g *guestSession) relayPixels(pixelR io.Reader) error {
	buf := make([]byte, PixelChunkSize)
	for {
		n, err := pixelR.Read(buf)
		if n > 0 {
			if sendErr := g.send(PixelChunk{Data: buf[:n]}); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			return g.send(PixelChunk{Last: true})
		}
		if err != nil {
			return err
		}
	}
}

// relayProgress forwards the conversion's stderr JSON lines as
// Progress frames. Non-JSON lines are dropped; stderr is the
// conversion's to scribble on.
func (g *guestSession) relayProgress(progressR io.Reader) {
	scanner := bufio.NewScanner(progressR)
	for scanner.Scan() {
		if report, ok := parseProgressJSON(scanner.Text()); ok {
			_ = g.send(report)
		}
	}
}

// parseProgressJSON decodes one stderr line as a progress report.
// The line format is the rasterizer's progress JSON; anything else
// is toolchain noise.
func parseProgressJSON(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Progress{}, false
	}
	var report Progress
	if err := json.Unmarshal([]byte(line), &report); err != nil {
		return Progress{}, false
	}
	return report, true
}
