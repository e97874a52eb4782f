// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"bytes"
	"strings"
	"testing"
)

func TestStderrBufferShortWrite(t *testing.T) {
	buf := NewStderrBuffer()
	buf.Write([]byte("hello "))
	buf.Write([]byte("world"))

	if got := string(buf.Bytes()); got != "hello world" {
		t.Fatalf("Bytes() = %q, want %q", got, "hello world")
	}
	if buf.TotalWritten() != 11 {
		t.Fatalf("TotalWritten() = %d, want 11", buf.TotalWritten())
	}
}

func TestStderrBufferKeepsTail(t *testing.T) {
	buf := NewStderrBuffer()
	// Overfill by a recognizable suffix.
	filler := bytes.Repeat([]byte{'x'}, StderrCapacity)
	buf.Write(filler)
	buf.Write([]byte("THE END"))

	got := buf.Bytes()
	if len(got) != StderrCapacity {
		t.Fatalf("retained %d bytes, want %d", len(got), StderrCapacity)
	}
	if !bytes.HasSuffix(got, []byte("THE END")) {
		t.Fatalf("tail = %q, want suffix %q", got[len(got)-16:], "THE END")
	}
	if buf.TotalWritten() != uint64(StderrCapacity+7) {
		t.Fatalf("TotalWritten() = %d, want %d", buf.TotalWritten(), StderrCapacity+7)
	}
}

func TestStderrBufferSingleOversizedWrite(t *testing.T) {
	buf := NewStderrBuffer()
	big := bytes.Repeat([]byte{'a'}, StderrCapacity*2+13)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	buf.Write(big)

	got := buf.Bytes()
	if !bytes.Equal(got, big[len(big)-StderrCapacity:]) {
		t.Fatal("retained bytes are not the tail of the write")
	}
}

func TestStderrBufferCapture(t *testing.T) {
	buf := NewStderrBuffer()
	buf.Capture(strings.NewReader("line one\nline two\n"))
	if got := string(buf.Bytes()); got != "line one\nline two\n" {
		t.Fatalf("Bytes() = %q", got)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ordinary text", "ordinary text"},
		{"newline and tab survive", "a\n\tb", "a\n\tb"},
		{"escape sequence", "\x1b[2Jcleared", "?[2Jcleared"},
		{"carriage return", "spin\rner", "spin?ner"},
		{"non-ascii", "café", "caf?"},
		{"null byte", "a\x00b", "a?b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Fatalf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
