// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

func solidPage(width, height uint16, value byte) *pixels.Page {
	rgb := bytes.Repeat([]byte{value}, int(width)*int(height)*3)
	return &pixels.Page{Width: width, Height: height, RGB: rgb}
}

func TestFinishWritesValidPDF(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "doc-safe.pdf")

	session, err := Begin(SessionOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := session.AddPage(solidPage(10, 10, 255)); err != nil {
		t.Fatalf("AddPage: %v", err)
	}

	summary, err := session.Finish(output)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if summary.Pages != 1 {
		t.Errorf("summary.Pages = %d, want 1", summary.Pages)
	}
	if !strings.HasPrefix(summary.Digest, "blake3:") {
		t.Errorf("digest %q lacks blake3 prefix", summary.Digest)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if int64(len(data)) != summary.Bytes {
		t.Errorf("file is %d bytes, summary says %d", len(data), summary.Bytes)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-1.4\n")) {
		t.Errorf("output does not start with a PDF 1.4 header")
	}
	if !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Errorf("output does not end with EOF marker")
	}
	for _, want := range []string{
		"/Type /Catalog",
		"/Count 1",
		"/MediaBox [0 0 4.8 4.8]", // 10 px at 150 DPI
		"/ColorSpace /DeviceRGB",
		"/Filter /FlateDecode",
		"/Im0 Do",
		"xref",
		"/ID [<",
	} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("output missing %q", want)
		}
	}
	// No temp file left behind.
	if _, err := os.Stat(output + TempSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present after Finish")
	}
}

func TestDigestStable(t *testing.T) {
	dir := t.TempDir()
	digests := make([]string, 2)
	for i := range digests {
		session, err := Begin(SessionOptions{})
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := session.AddPage(solidPage(10, 10, 255)); err != nil {
			t.Fatalf("AddPage: %v", err)
		}
		summary, err := session.Finish(filepath.Join(dir, fmt.Sprintf("out%d.pdf", i)))
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		digests[i] = summary.Digest
	}
	if digests[0] != digests[1] {
		t.Fatalf("digests differ for identical input: %s vs %s", digests[0], digests[1])
	}
}

func TestAddPageRejectsOversized(t *testing.T) {
	session, err := Begin(SessionOptions{Limits: Limits{MaxPages: 10, MaxWidth: 100, MaxHeight: 100}})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// The page lies about its size; no buffer of that size exists.
	err = session.AddPage(&pixels.Page{Width: 101, Height: 5, RGB: nil})
	if !errors.Is(err, ErrPageTooLarge) {
		t.Fatalf("AddPage oversized = %v, want ErrPageTooLarge", err)
	}

	// The session is poisoned: Finish reports the same error.
	if _, err := session.Finish(filepath.Join(t.TempDir(), "out.pdf")); !errors.Is(err, ErrPageTooLarge) {
		t.Fatalf("Finish after poison = %v, want ErrPageTooLarge", err)
	}
}

func TestAddPageRejectsZeroDimension(t *testing.T) {
	session, err := Begin(SessionOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := session.AddPage(&pixels.Page{Width: 0, Height: 5}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("AddPage zero width = %v, want ErrInvalidPage", err)
	}
}

func TestAddPageEnforcesPageCount(t *testing.T) {
	session, err := Begin(SessionOptions{Limits: Limits{MaxPages: 2, MaxWidth: 100, MaxHeight: 100}})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := session.AddPage(solidPage(4, 4, 0)); err != nil {
			t.Fatalf("AddPage %d: %v", i, err)
		}
	}
	if err := session.AddPage(solidPage(4, 4, 0)); !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("third AddPage = %v, want ErrTooManyPages", err)
	}
}

func TestFinishRefusesInputPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "original.pdf")

	session, err := Begin(SessionOptions{InputPath: input})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := session.AddPage(solidPage(4, 4, 0)); err != nil {
		t.Fatalf("AddPage: %v", err)
	}
	if _, err := session.Finish(input); !errors.Is(err, ErrSameFile) {
		t.Fatalf("Finish over input = %v, want ErrSameFile", err)
	}
	// A cleaned variant of the same path is still refused.
	if _, err := session.Finish(dir + "//original.pdf"); !errors.Is(err, ErrSameFile) {
		t.Fatalf("Finish over cleaned input = %v, want ErrSameFile", err)
	}
}

func TestFinishRefusesNonPDFPath(t *testing.T) {
	session, err := Begin(SessionOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := session.AddPage(solidPage(4, 4, 0)); err != nil {
		t.Fatalf("AddPage: %v", err)
	}
	if _, err := session.Finish(filepath.Join(t.TempDir(), "out.txt")); err == nil {
		t.Fatal("Finish accepted a non-.pdf output path")
	}
}

func TestAbort(t *testing.T) {
	session, err := Begin(SessionOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := session.AddPage(solidPage(4, 4, 0)); err != nil {
		t.Fatalf("AddPage: %v", err)
	}
	session.Abort()
	session.Abort() // double-call is fine

	if err := session.AddPage(solidPage(4, 4, 0)); !errors.Is(err, ErrAborted) {
		t.Fatalf("AddPage after Abort = %v, want ErrAborted", err)
	}
	if _, err := session.Finish(filepath.Join(t.TempDir(), "out.pdf")); !errors.Is(err, ErrAborted) {
		t.Fatalf("Finish after Abort = %v, want ErrAborted", err)
	}
}

func TestLimitsMemoryCeiling(t *testing.T) {
	if got := DefaultLimits().MemoryCeiling(); got != 10000*10000*3 {
		t.Fatalf("MemoryCeiling = %d", got)
	}
}

func TestPointsConversion(t *testing.T) {
	tests := []struct {
		px   int
		dpi  int
		want float64
	}{
		{150, 150, 72},
		{300, 150, 144},
		{72, 72, 72},
	}
	for _, tt := range tests {
		if got := points(tt.px, tt.dpi); got != tt.want {
			t.Errorf("points(%d, %d) = %v, want %v", tt.px, tt.dpi, got, tt.want)
		}
	}
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a(b)c", `a\(b\)c`},
		{`back\slash`, `back\\slash`},
		{"café", `caf\303\251`},
	}
	for _, tt := range tests {
		if got := escapeText(tt.in); got != tt.want {
			t.Errorf("escapeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
