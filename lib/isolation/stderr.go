// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"io"
	"strings"
	"sync"
)

// StderrCapacity is the ring capacity for captured sandbox stderr.
// 64 KiB keeps the interesting tail (the failure) while bounding what
// a hostile rasterizer can make the host hold.
const StderrCapacity = 64 * 1024

// StderrBuffer is a fixed-capacity ring over a sandbox's stderr. New
// writes overwrite the oldest data when full; the total-written
// counter makes truncation visible in logs.
//
// All methods are safe for concurrent use.
type StderrBuffer struct {
	mu            sync.Mutex
	data          []byte
	capacity      int
	writePosition int
	totalWritten  uint64
}

// NewStderrBuffer creates a ring with the standard capacity.
func NewStderrBuffer() *StderrBuffer {
	return &StderrBuffer{
		data:     make([]byte, StderrCapacity),
		capacity: StderrCapacity,
	}
}

// Write appends bytes, overwriting the oldest data when full. Always
// succeeds; implements io.Writer so it can sit directly on an
// exec.Cmd stderr.
func (b *StderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for offset := 0; offset < len(p); {
		available := b.capacity - b.writePosition
		n := len(p) - offset
		if n > available {
			n = available
		}
		copy(b.data[b.writePosition:b.writePosition+n], p[offset:offset+n])
		b.writePosition = (b.writePosition + n) % b.capacity
		offset += n
	}
	b.totalWritten += uint64(len(p))
	return len(p), nil
}

// Bytes returns the retained stderr in write order.
func (b *StderrBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.totalWritten
	if stored > uint64(b.capacity) {
		stored = uint64(b.capacity)
	}
	out := make([]byte, stored)

	start := (b.writePosition - int(stored)) % b.capacity
	if start < 0 {
		start += b.capacity
	}
	for copied := 0; copied < int(stored); {
		available := b.capacity - start
		n := int(stored) - copied
		if n > available {
			n = available
		}
		copy(out[copied:copied+n], b.data[start:start+n])
		start = (start + n) % b.capacity
		copied += n
	}
	return out
}

// String returns the retained stderr sanitized for logging.
func (b *StderrBuffer) String() string {
	return SanitizeText(string(b.Bytes()))
}

// TotalWritten returns the total bytes ever written, including
// overwritten ones.
func (b *StderrBuffer) TotalWritten() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalWritten
}

// Capture drains r into the buffer until EOF. Run it in a goroutine
// per stream; it never returns an error because a broken stderr pipe
// is not a job failure.
func (b *StderrBuffer) Capture(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// SanitizeText strips text that originated inside the sandbox down to
// printable ASCII before it reaches a log or terminal. Control
// characters and non-ASCII bytes become '?'; newlines and tabs
// survive. Terminal escape sequences from a hostile rasterizer must
// never replay into the operator's terminal.
func SanitizeText(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			out.WriteRune(r)
		case r >= 0x20 && r < 0x7F:
			out.WriteRune(r)
		default:
			out.WriteByte('?')
		}
	}
	return out.String()
}
