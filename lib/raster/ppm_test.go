// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// buildPPM constructs a P6 file with the given header values and
// pixel payload.
func buildPPM(magic string, width, height int, maxval string, rgb []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%d %d\n%s\n", magic, width, height, maxval)
	buf.Write(rgb)
	return buf.Bytes()
}

func TestParsePPM(t *testing.T) {
	rgb := bytes.Repeat([]byte{10, 20, 30}, 6)
	data := buildPPM("P6", 3, 2, "255", rgb)

	page, err := ParsePPM(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ParsePPM: %v", err)
	}
	if page.Width != 3 || page.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 3x2", page.Width, page.Height)
	}
	if !bytes.Equal(page.RGB, rgb) {
		t.Errorf("pixel data mismatch")
	}
	if err := page.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParsePPMRejections(t *testing.T) {
	valid := bytes.Repeat([]byte{0}, 18)

	tests := []struct {
		name     string
		data     []byte
		wantCode int
	}{
		{name: "wrong magic", data: buildPPM("P5", 3, 2, "255", valid), wantCode: ExitPPMHeader},
		{name: "empty", data: nil, wantCode: ExitPPMHeader},
		{name: "garbage dims", data: buildPPM("P6", 0, 0, "255", nil), wantCode: ExitPPMHeader},
		{name: "negative width", data: []byte("P6\n-3 2\n255\n"), wantCode: ExitPPMHeader},
		{name: "three dim fields", data: []byte("P6\n3 2 1\n255\n"), wantCode: ExitPPMHeader},
		{name: "width overflows uint16", data: buildPPM("P6", 70000, 2, "255", nil), wantCode: ExitPPMHeader},
		{name: "wrong depth", data: buildPPM("P6", 3, 2, "65535", valid), wantCode: ExitPPMDepth},
		{name: "short pixels", data: buildPPM("P6", 3, 2, "255", valid[:5]), wantCode: ExitPPMHeader},
		{name: "header only", data: []byte("P6\n"), wantCode: ExitPPMHeader},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParsePPM(bytes.NewReader(test.data))
			var rasterErr *Error
			if !errors.As(err, &rasterErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if rasterErr.Code != test.wantCode {
				t.Errorf("code = %d, want %d (%v)", rasterErr.Code, test.wantCode, err)
			}
		})
	}
}

func TestMessageForExit(t *testing.T) {
	if got := MessageForExit(ExitDocFormatUnsupported); got != "The document format is not supported" {
		t.Errorf("unexpected message %q", got)
	}
	// Unknown codes must produce something, never panic or leak.
	if got := MessageForExit(99); got == "" {
		t.Error("empty message for unknown code")
	}
}
