// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pdf reconstructs a PDF document from decoded pixel pages.
//
// The output contains nothing from the original file except pixels:
// one flate-compressed RGB image per page, an optional invisible
// OCR text layer, and the minimal PDF 1.4 scaffolding around them.
// All interpretation of untrusted bytes happened inside the sandbox;
// this package only ever handles width, height, and raw RGB.
package pdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

// DefaultDPI is the render resolution the rasterizer uses, and
// therefore the scale for converting pixel dimensions to PDF points.
const DefaultDPI = 150

// TempSuffix is appended to the output path while the document is
// being serialized. The rename to the final name is the commit.
const TempSuffix = ".airlock-tmp"

// Limits bounds what a conversion may produce. A hostile rasterizer
// controls the page count and dimensions on the wire; these caps are
// what stops it from turning that into a memory bomb.
type Limits struct {
	MaxPages  int
	MaxWidth  int
	MaxHeight int
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{MaxPages: 10000, MaxWidth: 10000, MaxHeight: 10000}
}

// MemoryCeiling is the largest raw page buffer the limits permit.
func (l Limits) MemoryCeiling() int {
	return l.MaxWidth * l.MaxHeight * pixels.BytesPerPixel
}

// CheckPage validates page dimensions against the limits. Call it
// before allocating anything sized by those dimensions.
func (l Limits) CheckPage(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidPage, width, height)
	}
	if width > l.MaxWidth || height > l.MaxHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrPageTooLarge,
			width, height, l.MaxWidth, l.MaxHeight)
	}
	return nil
}

// Sentinel errors for limit violations and session misuse.
var (
	ErrInvalidPage  = fmt.Errorf("page has a zero dimension")
	ErrPageTooLarge = fmt.Errorf("page exceeds dimension limits")
	ErrTooManyPages = fmt.Errorf("too many pages")
	ErrAborted      = fmt.Errorf("session aborted")
	ErrSameFile     = fmt.Errorf("output path equals input path")
)

// SessionOptions configures one reconstruction session.
type SessionOptions struct {
	// DPI the pages were rendered at. Zero means DefaultDPI.
	DPI int

	// InputPath is the original document's path. Finish refuses to
	// write over it.
	InputPath string

	// OCR, when non-nil, adds an invisible searchable text layer
	// per page. Any OCR failure fails the whole session.
	OCR *OCROptions

	Limits Limits
	Logger *slog.Logger
}

// Session accumulates pages and serializes them as one PDF. Pages
// are compressed as they arrive, so the session never holds more
// than one raw page. Not safe for concurrent use; the driver feeds
// it from a single goroutine.
type Session struct {
	opts   SessionOptions
	pages  []encodedPage
	hasher *blake3.Hasher

	err     error
	aborted bool
}

type encodedPage struct {
	width  int
	height int

	// deflated holds the zlib-compressed RGB data.
	deflated []byte

	// words is the OCR text layer, empty without OCR.
	words []Word
}

// Begin opens a session. Zero-value options get defaults.
func Begin(opts SessionOptions) (*Session, error) {
	if opts.DPI == 0 {
		opts.DPI = DefaultDPI
	}
	if opts.DPI < 0 {
		return nil, fmt.Errorf("invalid DPI %d", opts.DPI)
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OCR != nil {
		if err := opts.OCR.validate(); err != nil {
			return nil, err
		}
	}
	return &Session{opts: opts, hasher: blake3.New()}, nil
}

// AddPage appends one page. The dimension check runs before any
// allocation sized by the page, and the pixels are compressed
// immediately. The first error poisons the session; Finish will
// return it.
func (s *Session) AddPage(p *pixels.Page) error {
	if s.err != nil {
		return s.err
	}
	if s.aborted {
		return ErrAborted
	}
	if err := s.addPage(p); err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *Session) addPage(p *pixels.Page) error {
	if len(s.pages) >= s.opts.Limits.MaxPages {
		return fmt.Errorf("%w: limit %d", ErrTooManyPages, s.opts.Limits.MaxPages)
	}
	width, height := int(p.Width), int(p.Height)
	if err := s.opts.Limits.CheckPage(width, height); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	if _, err := zw.Write(p.RGB); err != nil {
		return fmt.Errorf("compressing page %d: %w", len(s.pages)+1, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing page %d: %w", len(s.pages)+1, err)
	}

	page := encodedPage{width: width, height: height, deflated: deflated.Bytes()}

	if s.opts.OCR != nil {
		words, err := s.opts.OCR.recognize(p, s.opts.DPI)
		if err != nil {
			return fmt.Errorf("OCR on page %d: %w", len(s.pages)+1, err)
		}
		page.words = words
	}

	// The document identity hash covers the pixel content, not the
	// serialized bytes, so it is stable regardless of compression.
	s.hasher.Write(p.RGB)
	s.pages = append(s.pages, page)
	return nil
}

// Pages returns the number of pages added so far.
func (s *Session) Pages() int { return len(s.pages) }

// Abort discards everything. Safe to call twice; Finish after Abort
// fails.
func (s *Session) Abort() {
	s.aborted = true
	s.pages = nil
}

// Summary describes a finished document.
type Summary struct {
	Pages  int
	Bytes  int64
	Digest string
}

// Finish serializes the document to outputPath, all or nothing: the
// bytes go to a temporary file beside the target, are fsynced, and
// rename into place. Any earlier AddPage error surfaces here and
// nothing is written.
func (s *Session) Finish(outputPath string) (Summary, error) {
	if s.err != nil {
		return Summary{}, s.err
	}
	if s.aborted {
		return Summary{}, ErrAborted
	}
	if err := s.checkOutputPath(outputPath); err != nil {
		return Summary{}, err
	}

	var doc bytes.Buffer
	if err := s.serialize(&doc); err != nil {
		return Summary{}, err
	}

	tmpPath := outputPath + TempSuffix
	if err := writeAtomic(tmpPath, outputPath, doc.Bytes()); err != nil {
		return Summary{}, err
	}

	digest := blake3.Sum256(doc.Bytes())
	return Summary{
		Pages:  len(s.pages),
		Bytes:  int64(doc.Len()),
		Digest: fmt.Sprintf("blake3:%x", digest),
	}, nil
}

func (s *Session) checkOutputPath(outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("empty output path")
	}
	if s.opts.InputPath != "" &&
		filepath.Clean(outputPath) == filepath.Clean(s.opts.InputPath) {
		return fmt.Errorf("%w: %s", ErrSameFile, outputPath)
	}
	if !strings.HasSuffix(strings.ToLower(outputPath), ".pdf") {
		return fmt.Errorf("output path %q does not end in .pdf", outputPath)
	}
	return nil
}

func writeAtomic(tmpPath, finalPath string, data []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
