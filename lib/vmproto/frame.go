// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a vmproto frame. The version digit is part of the
// magic: a protocol change bumps it and old peers reject the stream
// immediately rather than misparsing it.
const Magic = "AIRv1"

// MaxFrameSize is the largest accepted payload, compressed or raw.
// 16 MiB comfortably holds the biggest legal pixel chunk while keeping
// a hostile length field from forcing a large allocation.
const MaxFrameSize = 16 << 20

// Frame flag bits. At most one compression bit may be set.
const (
	// FlagLZ4 marks an LZ4 block-compressed payload, prefixed with
	// the uvarint uncompressed length.
	FlagLZ4 uint8 = 1 << 0

	// FlagZstd marks a zstd-compressed payload, prefixed with the
	// uvarint uncompressed length.
	FlagZstd uint8 = 1 << 1
)

// headerSize is len(Magic) + 1 flag byte + 4 length bytes.
const headerSize = len(Magic) + 1 + 4

// Sentinel errors returned by [Reader].
var (
	// ErrBadMagic reports a frame that does not start with [Magic].
	// The peer is speaking a different protocol or a different
	// version; nothing after this point can be trusted.
	ErrBadMagic = errors.New("vmproto: bad frame magic")

	// ErrFrameTooLarge reports a declared payload length above
	// [MaxFrameSize]. Detected before any payload allocation.
	ErrFrameTooLarge = errors.New("vmproto: frame exceeds size limit")

	// ErrTruncatedFrame reports a stream that ended inside a frame.
	ErrTruncatedFrame = errors.New("vmproto: truncated frame")
)

// Writer writes frames to an underlying stream. Not safe for
// concurrent use.
type Writer struct {
	w      io.Writer
	header [headerSize]byte
}

// NewWriter creates a frame writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes one frame. The payload is probed for
// compressibility; the compression actually used is recorded in the
// frame flags, so the writer's choice never needs out-of-band
// agreement.
func (w *Writer) WriteFrame(payload []byte) error {
	compressed, flags := compressPayload(payload)
	if len(compressed) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(compressed))
	}

	copy(w.header[:], Magic)
	w.header[len(Magic)] = flags
	binary.BigEndian.PutUint32(w.header[len(Magic)+1:], uint32(len(compressed)))

	if _, err := w.w.Write(w.header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.w.Write(compressed); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// Reader reads frames from an underlying stream. Not safe for
// concurrent use.
type Reader struct {
	r      io.Reader
	header [headerSize]byte
}

// NewReader creates a frame reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads one frame and returns the decompressed payload. A
// clean EOF at a frame boundary returns io.EOF; EOF inside a frame
// returns ErrTruncatedFrame.
func (r *Reader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading header", ErrTruncatedFrame)
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	if string(r.header[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}

	flags := r.header[len(Magic)]
	length := binary.BigEndian.Uint32(r.header[len(Magic)+1:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading %d-byte payload", ErrTruncatedFrame, length)
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return decompressPayload(payload, flags)
}
