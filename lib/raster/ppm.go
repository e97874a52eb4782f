// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

// ParsePPM reads one binary PPM (P6) image as produced by pdftoppm
// and returns it as a pixel page. Only the header layout pdftoppm
// emits is accepted: three newline-terminated lines ("P6",
// "<width> <height>", "<maxval>") followed by raw RGB samples.
// Accepting the full PPM grammar (comments, arbitrary whitespace)
// would only widen what a compromised poppler can feed the encoder.
func ParsePPM(r io.Reader) (*pixels.Page, error) {
	br := bufio.NewReader(r)

	magic, err := readPPMLine(br)
	if err != nil {
		return nil, err
	}
	if magic != "P6" {
		return nil, &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("invalid PPM magic %q", magic)}
	}

	dims, err := readPPMLine(br)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(dims)
	if len(fields) != 2 {
		return nil, &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("invalid PPM dimensions %q", dims)}
	}
	width, err := parsePPMDim(fields[0])
	if err != nil {
		return nil, err
	}
	height, err := parsePPMDim(fields[1])
	if err != nil {
		return nil, err
	}

	maxval, err := readPPMLine(br)
	if err != nil {
		return nil, err
	}
	if maxval != "255" {
		return nil, &Error{Code: ExitPPMDepth, Msg: fmt.Sprintf("invalid PPM depth %q", maxval)}
	}

	header := pixels.PageHeader{Width: width, Height: height}
	page := &pixels.Page{Width: width, Height: height, RGB: make([]byte, header.PixelLen())}
	if _, err := io.ReadFull(br, page.RGB); err != nil {
		return nil, &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("short pixel data: %v", err)}
	}
	return page, nil
}

func readPPMLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("truncated PPM header: %v", err)}
	}
	return strings.TrimSpace(line), nil
}

// parsePPMDim parses a dimension and bounds it to what the wire
// format can carry. pdftoppm at sane resolutions never approaches
// 65535 pixels; a value out of range means the PDF was crafted to
// overflow the uint16 fields.
func parsePPMDim(s string) (uint16, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("invalid PPM dimension %q", s)}
	}
	if v > math.MaxUint16 {
		return 0, &Error{Code: ExitPPMHeader, Msg: fmt.Sprintf("PPM dimension %d exceeds wire format", v)}
	}
	return uint16(v), nil
}
