// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"bytes"
	"encoding/binary"
)

// Tool selects the conversion path for a detected document type.
type Tool int

const (
	// ToolNone: the input is already a PDF.
	ToolNone Tool = iota

	// ToolLibreOffice: office formats, rendered to PDF headless.
	ToolLibreOffice

	// ToolGraphicsMagick: raster images, wrapped into a PDF page.
	ToolGraphicsMagick
)

// String returns the tool name for logs.
func (t Tool) String() string {
	switch t {
	case ToolNone:
		return "none"
	case ToolLibreOffice:
		return "libreoffice"
	case ToolGraphicsMagick:
		return "graphicsmagick"
	default:
		return "unknown"
	}
}

// conversions is the allow-table of accepted MIME types. A type
// absent from this table is unsupported, full stop — the table is a
// security boundary, not a best-effort dispatcher.
var conversions = map[string]Tool{
	"application/pdf": ToolNone,

	// Office documents, old and new container formats.
	"application/msword": ToolLibreOffice,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ToolLibreOffice,
	"application/vnd.ms-word.document.macroEnabled.12":                          ToolLibreOffice,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ToolLibreOffice,
	"application/vnd.ms-excel":                                                  ToolLibreOffice,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ToolLibreOffice,
	"application/vnd.ms-powerpoint":                                             ToolLibreOffice,
	"application/vnd.oasis.opendocument.text":                                   ToolLibreOffice,
	"application/vnd.oasis.opendocument.graphics":                               ToolLibreOffice,
	"application/vnd.oasis.opendocument.presentation":                           ToolLibreOffice,
	"application/vnd.oasis.opendocument.spreadsheet":                            ToolLibreOffice,
	"application/vnd.oasis.opendocument.spreadsheet-template":                   ToolLibreOffice,
	"application/vnd.oasis.opendocument.text-template":                          ToolLibreOffice,

	// Hancom HWP family.
	"application/vnd.hancom.hwp":  ToolLibreOffice,
	"application/haansofthwp":     ToolLibreOffice,
	"application/x-hwp":           ToolLibreOffice,
	"application/vnd.hancom.hwpx": ToolLibreOffice,
	"application/haansofthwpx":    ToolLibreOffice,

	// Container formats that content sniffing cannot refine further.
	// All of them are office-document carriers; LibreOffice rejects
	// anything that merely wears the container.
	"application/zip":           ToolLibreOffice,
	"application/octet-stream":  ToolLibreOffice,
	"application/x-ole-storage": ToolLibreOffice,

	// Images.
	"image/jpeg":   ToolGraphicsMagick,
	"image/gif":    ToolGraphicsMagick,
	"image/png":    ToolGraphicsMagick,
	"image/tiff":   ToolGraphicsMagick,
	"image/x-tiff": ToolGraphicsMagick,
}

// Route resolves a MIME type against the allow-table.
func Route(mimeType string) (Tool, bool) {
	tool, ok := conversions[mimeType]
	return tool, ok
}

// sniffLen is how much of the file DetectMIME examines.
const sniffLen = 512

// magicPattern maps a file prefix to a MIME type.
type magicPattern struct {
	offset int
	prefix []byte
	mime   string
}

// magicTable holds exact-prefix signatures. Order matters only where
// prefixes overlap; none here do.
var magicTable = []magicPattern{
	{0, []byte("%PDF-"), "application/pdf"},
	{0, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, "image/png"},
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte("GIF87a"), "image/gif"},
	{0, []byte("GIF89a"), "image/gif"},
	{0, []byte("II*\x00"), "image/tiff"},
	{0, []byte("MM\x00*"), "image/tiff"},
	// Legacy HWP 3.x stores a plain-text signature.
	{0, []byte("HWP Document File"), "application/x-hwp"},
	// OLE compound file: .doc, .ppt, .xls, and HWP 5.x.
	{0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "application/x-ole-storage"},
}

// DetectMIME sniffs a document's MIME type from its leading bytes.
// The table is deliberately conservative: it matches exact magic
// numbers and returns empty for anything it does not recognize. A
// generous guesser here would widen the attack surface the allow-table
// exists to close.
func DetectMIME(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	for _, pattern := range magicTable {
		end := pattern.offset + len(pattern.prefix)
		if len(data) >= end && bytes.Equal(data[pattern.offset:end], pattern.prefix) {
			return pattern.mime
		}
	}
	if mime := detectZip(data); mime != "" {
		return mime
	}
	return ""
}

// detectZip classifies zip containers. OpenDocument and OOXML files
// both store their type marker near the start of the archive: ODF
// keeps an uncompressed "mimetype" entry first, OOXML a
// "[Content_Types].xml" entry. Anything else stays generic zip.
func detectZip(data []byte) string {
	if len(data) < 4 || !bytes.Equal(data[:4], []byte("PK\x03\x04")) {
		return ""
	}

	// ODF keeps an uncompressed "mimetype" entry as the archive's
	// first member, so the declared type sits at a fixed spot: the
	// 30-byte local file header, the 8-byte name, then the value
	// whose length is the header's compressed-size field.
	if len(data) >= 38 && bytes.Equal(data[30:38], []byte("mimetype")) {
		size := int(binary.LittleEndian.Uint32(data[18:22]))
		extra := int(binary.LittleEndian.Uint16(data[28:30]))
		start := 38 + extra
		if size > 0 && size <= 128 && len(data) >= start+size {
			declared := string(data[start : start+size])
			if _, ok := conversions[declared]; ok {
				return declared
			}
			if declared == "application/hwp+zip" {
				return "application/vnd.hancom.hwpx"
			}
		}
		return "application/zip"
	}

	// OOXML and everything else zip-shaped stays generic; the
	// container alone is enough to route to LibreOffice.
	return "application/zip"
}
