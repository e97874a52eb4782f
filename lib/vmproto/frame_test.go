// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: []byte{}},
		{name: "small control message", payload: []byte("hello")},
		{name: "compressible", payload: bytes.Repeat([]byte("pixel data "), 10000)},
		{name: "incompressible", payload: randomBytes(t, 64*1024)},
		{name: "threshold boundary", payload: bytes.Repeat([]byte{0xAA}, compressThreshold)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewWriter(&buf).WriteFrame(test.payload); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := NewReader(&buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, test.payload) {
				t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(test.payload))
			}
		})
	}
}

func TestFrameCompression(t *testing.T) {
	// Highly repetitive data must actually compress on the wire.
	payload := bytes.Repeat([]byte("abcdefgh"), 8192)
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if buf.Len() >= len(payload) {
		t.Errorf("compressible payload did not shrink: wire %d bytes, raw %d", buf.Len(), len(payload))
	}
	flags := buf.Bytes()[len(Magic)]
	if flags != FlagLZ4 && flags != FlagZstd {
		t.Errorf("expected a compression flag, got 0x%02x", flags)
	}
}

func TestFrameIncompressibleFallsBackToRaw(t *testing.T) {
	payload := randomBytes(t, 32*1024)
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if flags := buf.Bytes()[len(Magic)]; flags != 0 {
		t.Errorf("random payload should travel raw, got flags 0x%02x", flags)
	}
	if wire := buf.Len() - headerSize; wire != len(payload) {
		t.Errorf("raw payload length %d on the wire, want %d", wire, len(payload))
	}
}

func TestFrameBadMagic(t *testing.T) {
	data := []byte("XXXv1\x00\x00\x00\x00\x05hello")
	_, err := NewReader(bytes.NewReader(data)).ReadFrame()
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.BigEndian.PutUint32(header[len(Magic)+1:], MaxFrameSize+1)

	_, err := NewReader(bytes.NewReader(header)).ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameTruncation(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame([]byte("some payload bytes")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	full := buf.Bytes()

	tests := []struct {
		name string
		cut  int
	}{
		{name: "inside header", cut: headerSize - 2},
		{name: "after header", cut: headerSize},
		{name: "inside payload", cut: len(full) - 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(full[:test.cut])).ReadFrame()
			if !errors.Is(err, ErrTruncatedFrame) {
				t.Fatalf("expected ErrTruncatedFrame, got %v", err)
			}
		})
	}
}

func TestFrameCleanEOF(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).ReadFrame()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at a frame boundary, got %v", err)
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	// A compressed frame whose length prefix lies about the
	// uncompressed size must be rejected.
	payload := bytes.Repeat([]byte("abcdefgh"), 8192)
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	wire := buf.Bytes()
	flags := wire[len(Magic)]
	if flags == 0 {
		t.Skip("payload did not compress; nothing to tamper with")
	}

	// Rewrite the uvarint size prefix inside the payload to a wrong
	// but in-bounds value.
	body := wire[headerSize:]
	_, n := binary.Uvarint(body)
	tampered := make([]byte, 0, len(body))
	prefix := make([]byte, binary.MaxVarintLen64)
	pn := binary.PutUvarint(prefix, uint64(len(payload)-1))
	tampered = append(tampered, prefix[:pn]...)
	tampered = append(tampered, body[n:]...)

	_, err := decompressPayload(tampered, flags)
	if err == nil {
		t.Fatal("expected an error for a lying size prefix")
	}
}

func TestDeclaredUncompressedSizeBounded(t *testing.T) {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(MaxFrameSize+1))
	_, err := decompressPayload(prefix[:n], FlagLZ4)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return buf
}
