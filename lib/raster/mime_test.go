// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "pdf", data: []byte("%PDF-1.4\n%stuff"), want: "application/pdf"},
		{name: "png", data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0}, want: "image/png"},
		{name: "jpeg", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, want: "image/jpeg"},
		{name: "gif87", data: []byte("GIF87a...."), want: "image/gif"},
		{name: "gif89", data: []byte("GIF89a...."), want: "image/gif"},
		{name: "tiff little endian", data: []byte("II*\x00rest"), want: "image/tiff"},
		{name: "tiff big endian", data: []byte("MM\x00*rest"), want: "image/tiff"},
		{name: "ole storage", data: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}, want: "application/x-ole-storage"},
		{name: "legacy hwp", data: []byte("HWP Document File V3.00"), want: "application/x-hwp"},
		{name: "generic zip", data: zipWith(t, "word/document.xml", nil), want: "application/zip"},
		{name: "plain text", data: []byte("hello world"), want: ""},
		{name: "empty", data: nil, want: ""},
		{name: "truncated magic", data: []byte("%PD"), want: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := DetectMIME(test.data); got != test.want {
				t.Errorf("DetectMIME = %q, want %q", got, test.want)
			}
		})
	}
}

func TestDetectMIMEOpenDocument(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		want     string
	}{
		{
			name:     "odt",
			declared: "application/vnd.oasis.opendocument.text",
			want:     "application/vnd.oasis.opendocument.text",
		},
		{
			name:     "ods",
			declared: "application/vnd.oasis.opendocument.spreadsheet",
			want:     "application/vnd.oasis.opendocument.spreadsheet",
		},
		{
			name:     "hwpx",
			declared: "application/hwp+zip",
			want:     "application/vnd.hancom.hwpx",
		},
		{
			name:     "unknown declared type stays zip",
			declared: "application/x-made-up",
			want:     "application/zip",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := zipWith(t, "mimetype", []byte(test.declared))
			if got := DetectMIME(data); got != test.want {
				t.Errorf("DetectMIME = %q, want %q", got, test.want)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		mime     string
		wantTool Tool
		wantOK   bool
	}{
		{"application/pdf", ToolNone, true},
		{"application/msword", ToolLibreOffice, true},
		{"application/zip", ToolLibreOffice, true},
		{"application/octet-stream", ToolLibreOffice, true},
		{"application/x-ole-storage", ToolLibreOffice, true},
		{"application/vnd.hancom.hwpx", ToolLibreOffice, true},
		{"image/png", ToolGraphicsMagick, true},
		{"image/x-tiff", ToolGraphicsMagick, true},
		{"text/html", 0, false},
		{"application/x-executable", 0, false},
		{"", 0, false},
	}
	for _, test := range tests {
		tool, ok := Route(test.mime)
		if ok != test.wantOK || (ok && tool != test.wantTool) {
			t.Errorf("Route(%q) = %v, %v; want %v, %v", test.mime, tool, ok, test.wantTool, test.wantOK)
		}
	}
}

// zipWith builds a minimal zip local-file-header prefix whose first
// entry has the given name and stored (uncompressed) content. Enough
// structure for the sniffer; not a valid complete archive.
func zipWith(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("PK\x03\x04")
	header := make([]byte, 26)
	binary.LittleEndian.PutUint32(header[14:], uint32(len(content))) // compressed size
	binary.LittleEndian.PutUint32(header[18:], uint32(len(content))) // uncompressed size
	binary.LittleEndian.PutUint16(header[22:], uint16(len(name)))
	buf.Write(header)
	buf.WriteString(name)
	buf.Write(content)
	return buf.Bytes()
}
