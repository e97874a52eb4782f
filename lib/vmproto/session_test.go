// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/airlock/lib/testutil"
)

// startGuest runs ServeGuest over in-process pipes and returns the
// host-side transport ends.
func startGuest(t *testing.T, convert ConvertFunc) (io.WriteCloser, io.Reader, <-chan error) {
	t.Helper()
	hostToGuestR, hostToGuestW := io.Pipe()
	guestToHostR, guestToHostW := io.Pipe()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ServeGuest(context.Background(), hostToGuestR, guestToHostW, convert)
		guestToHostW.Close()
	}()
	return hostToGuestW, guestToHostR, serveErr
}

func TestSessionRoundTrip(t *testing.T) {
	document := []byte("%PDF-1.4 the document")
	pixelStream := bytes.Repeat([]byte{0xAB}, 3*PixelChunkSize/2)

	convert := func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
		received, err := io.ReadAll(stdin)
		if err != nil {
			return 1
		}
		if !bytes.Equal(received, document) {
			return 2
		}
		fmt.Fprintln(stderr, `{"error":false,"text":"Converting page 1/1 to pixels","percentage":50}`)
		if _, err := stdout.Write(pixelStream); err != nil {
			return 3
		}
		return 0
	}

	hostW, hostR, serveErr := startGuest(t, convert)

	var progressMu sync.Mutex
	var reports []Progress
	session := NewHostSession(hostW, hostR, func(p Progress) {
		progressMu.Lock()
		reports = append(reports, p)
		progressMu.Unlock()
	})
	if err := session.Begin("doc123", int64(len(document))); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Upload the document and read pixels concurrently, as the
	// conversion driver does.
	uploadErr := make(chan error, 1)
	go func() {
		w := session.DocWriter()
		if _, err := w.Write(document); err != nil {
			uploadErr <- err
			return
		}
		uploadErr <- w.Close()
	}()

	pixels, err := io.ReadAll(session.PixelReader())
	if err != nil {
		t.Fatalf("reading pixels: %v", err)
	}
	if !bytes.Equal(pixels, pixelStream) {
		t.Fatalf("pixel stream mismatch: got %d bytes, want %d", len(pixels), len(pixelStream))
	}

	if err := testutil.RequireReceive(t, uploadErr, 5*time.Second, "document upload"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	code, err := session.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if err := testutil.RequireReceive(t, serveErr, 5*time.Second, "guest exit"); err != nil {
		t.Fatalf("ServeGuest: %v", err)
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	if len(reports) != 1 || reports[0].Percentage != 50 {
		t.Errorf("progress reports = %+v", reports)
	}
}

func TestSessionGuestFailure(t *testing.T) {
	convert := func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
		io.Copy(io.Discard, stdin)
		fmt.Fprintln(stderr, `{"error":true,"text":"unsupported","percentage":0}`)
		return 10
	}

	hostW, hostR, serveErr := startGuest(t, convert)
	session := NewHostSession(hostW, hostR, nil)
	if err := session.Begin("doc456", 4); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	w := session.DocWriter()
	if _, err := w.Write([]byte("nope")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := io.ReadAll(session.PixelReader()); err != nil {
		t.Fatalf("pixel reader should end cleanly, got %v", err)
	}
	code, err := session.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 10 {
		t.Fatalf("exit code = %d, want 10", code)
	}
	if err := testutil.RequireReceive(t, serveErr, 5*time.Second, "guest exit"); err != nil {
		t.Fatalf("ServeGuest: %v", err)
	}
}

func TestSessionTransportDrop(t *testing.T) {
	// A guest that dies mid-stream: the host's pixel reader and Wait
	// must both surface the failure rather than hang.
	hostToGuestR, hostToGuestW := io.Pipe()
	guestToHostR, guestToHostW := io.Pipe()

	go func() {
		r := NewReader(hostToGuestR)
		w := NewWriter(guestToHostW)
		// Handshake, then vanish.
		if _, err := r.ReadMessage(); err != nil {
			return
		}
		if err := w.WriteMessage(Hello{Version: ProtocolVersion}); err != nil {
			return
		}
		if _, err := r.ReadMessage(); err != nil { // convert request
			return
		}
		guestToHostW.Close()
		// Keep draining host frames so the upload does not block.
		for {
			if _, err := r.ReadMessage(); err != nil {
				return
			}
		}
	}()

	session := NewHostSession(hostToGuestW, guestToHostR, nil)
	if err := session.Begin("doc789", 1); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := io.ReadAll(session.PixelReader()); err == nil {
		t.Fatal("pixel reader returned no error after transport drop")
	}
	if _, err := session.Wait(); err == nil {
		t.Fatal("Wait returned no error after transport drop")
	}
}
