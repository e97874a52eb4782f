// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

func TestNullProviderDefaultScript(t *testing.T) {
	provider := &NullProvider{}
	handle, err := provider.Start(context.Background(), Job{DocumentID: "abc123"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		handle.Stdin().Write([]byte("pretend document"))
		handle.Stdin().Close()
	}()

	decoder := pixels.NewDecoder(handle.Stdout())
	header, err := decoder.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if header.Pages != 2 {
		t.Fatalf("Pages = %d, want 2", header.Pages)
	}
	for i := 0; i < 2; i++ {
		page, err := decoder.DecodePage()
		if err != nil {
			t.Fatalf("DecodePage %d: %v", i, err)
		}
		if page.Width != 9 || page.Height != 9 {
			t.Fatalf("page %d is %dx%d, want 9x9", i, page.Width, page.Height)
		}
	}

	code, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestNullProviderCustomScript(t *testing.T) {
	provider := &NullProvider{
		Script: func(stdin io.Reader, stdout, stderr io.Writer) int {
			io.Copy(io.Discard, stdin)
			fmt.Fprintln(stderr, "boom")
			return 40
		},
	}
	handle, err := provider.Start(context.Background(), Job{DocumentID: "abc123"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	handle.Stdin().Close()
	io.Copy(io.Discard, handle.Stdout())

	code, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 40 {
		t.Fatalf("exit code = %d, want 40", code)
	}
	if got := handle.Stderr().String(); got != "boom\n" {
		t.Fatalf("stderr = %q, want %q", got, "boom\n")
	}
}

func TestNullProviderTerminateUnblocks(t *testing.T) {
	started := make(chan struct{})
	provider := &NullProvider{
		Script: func(stdin io.Reader, stdout, stderr io.Writer) int {
			close(started)
			// Block on input that never arrives.
			io.Copy(io.Discard, stdin)
			return 0
		},
	}
	handle, err := provider.Start(context.Background(), Job{DocumentID: "abc123"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	if err := handle.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
