// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bureau-foundation/airlock/lib/clock"
	"github.com/bureau-foundation/airlock/lib/vmproto"
)

// vanishingGuest answers the handshake on the transport ends and then
// drops the connection, like a VM that died mid-conversion.
func vanishingGuest(fromHost io.Reader, toHost io.WriteCloser) {
	reader := vmproto.NewReader(fromHost)
	writer := vmproto.NewWriter(toHost)
	if _, err := reader.ReadMessage(); err != nil { // host hello
		return
	}
	writer.WriteMessage(vmproto.Hello{Version: vmproto.ProtocolVersion})
	if _, err := reader.ReadMessage(); err != nil { // convert request
		return
	}
	toHost.Close()
}

// A dropped transport leaves the session with an error and the
// transport process reaped. The stop ladder must recognize that as an
// exited sandbox instead of escalating against a dead process.
func TestVMHandleStopsAfterTransportDrop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proc, err := startProc(ctx, []string{"/bin/true"}, nil)
	if err != nil {
		t.Fatalf("starting transport process: %v", err)
	}
	if _, err := proc.Wait(ctx); err != nil {
		t.Fatalf("reaping transport process: %v", err)
	}

	hostToGuestR, hostToGuestW := io.Pipe()
	guestToHostR, guestToHostW := io.Pipe()
	go vanishingGuest(hostToGuestR, guestToHostW)

	session := vmproto.NewHostSession(hostToGuestW, guestToHostR, nil)
	if err := session.Begin("doc", 1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := session.Wait(); err == nil {
		t.Fatal("expected a session error after the transport drop")
	}

	handle := &vmHandle{proc: proc, session: session}
	fake := clock.Fake(time.Unix(1000, 0))
	if err := EnsureStop(ctx, handle, fake, nil); err != nil {
		t.Fatalf("EnsureStop after transport drop: %v", err)
	}
}
