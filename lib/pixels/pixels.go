// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pixels

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire format constants. These are protocol constants — the rasterizer
// image and the host must agree on them, so changing either invalidates
// deployed sandbox images.
const (
	// IntBytes is the encoded size of every integer field in the
	// stream: page count, width, and height are all big-endian uint16.
	IntBytes = 2

	// BytesPerPixel is the number of bytes per pixel: 8-bit red, green,
	// blue. No alpha, no padding, rows are not aligned.
	BytesPerPixel = 3
)

// Sentinel errors returned by the decoder. Callers match them with
// [errors.Is]; the wrapped forms carry positional context.
var (
	// ErrTruncated reports that the stream ended before a complete
	// field or pixel buffer was read. A hostile or crashed rasterizer
	// produces this; it is never a recoverable condition.
	ErrTruncated = errors.New("pixel stream truncated")

	// ErrInvalidDimensions reports a page header with a zero width or
	// height. Zero-area pages are structurally meaningless and always
	// indicate a corrupt or malicious stream.
	ErrInvalidDimensions = errors.New("invalid page dimensions")
)

// Header is the stream prologue: the number of pages that follow.
//
// A zero page count is structurally valid — the stream simply ends
// after the header. Whether an empty document is acceptable is the
// consumer's decision, not the codec's.
type Header struct {
	Pages uint16
}

// PageHeader describes one page before its pixel data. Width and Height
// are in pixels at the rasterizer's render resolution.
type PageHeader struct {
	Width  uint16
	Height uint16
}

// PixelLen returns the number of pixel bytes that follow this header.
// The multiplication is done in int, so it cannot overflow for any
// uint16 dimensions (max 10000*10000*3 < 2^31).
func (h PageHeader) PixelLen() int {
	return int(h.Width) * int(h.Height) * BytesPerPixel
}

// Page is one fully decoded page.
type Page struct {
	Width  uint16
	Height uint16

	// RGB is the raw pixel data, len Width*Height*BytesPerPixel,
	// row-major, top to bottom.
	RGB []byte
}

// Validate checks that the pixel buffer length matches the dimensions
// and that neither dimension is zero.
func (p *Page) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, p.Width, p.Height)
	}
	want := int(p.Width) * int(p.Height) * BytesPerPixel
	if len(p.RGB) != want {
		return fmt.Errorf("pixel buffer is %d bytes, dimensions %dx%d require %d",
			len(p.RGB), p.Width, p.Height, want)
	}
	return nil
}

// Decoder reads a pixel stream incrementally. Create one with
// [NewDecoder], read the prologue with [Decoder.Header], then alternate
// [Decoder.NextPage] and [Decoder.ReadPixels] (or use the combined
// [Decoder.DecodePage]) exactly Header.Pages times.
//
// The decoder is not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	scratch [IntBytes]byte
}

// NewDecoder creates a decoder over r. The reader is consumed exactly:
// the decoder never reads past the bytes the format requires, so r can
// carry trailing data for other protocols.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// readUint16 reads one big-endian uint16, mapping any short read
// (including immediate EOF) to ErrTruncated with the field name.
func (d *Decoder) readUint16(field string) (uint16, error) {
	if _, err := io.ReadFull(d.r, d.scratch[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: reading %s", ErrTruncated, field)
		}
		return 0, fmt.Errorf("reading %s: %w", field, err)
	}
	return binary.BigEndian.Uint16(d.scratch[:]), nil
}

// Header reads the stream prologue. Any page count, including zero, is
// valid here.
func (d *Decoder) Header() (Header, error) {
	n, err := d.readUint16("page count")
	if err != nil {
		return Header{}, err
	}
	return Header{Pages: n}, nil
}

// NextPage reads the next page's dimensions. A zero width or height
// returns ErrInvalidDimensions (wrapped with the offending values). No
// upper bound is applied — the caller decides, before calling
// [Decoder.ReadPixels], whether the page is acceptably sized.
func (d *Decoder) NextPage() (PageHeader, error) {
	width, err := d.readUint16("page width")
	if err != nil {
		return PageHeader{}, err
	}
	height, err := d.readUint16("page height")
	if err != nil {
		return PageHeader{}, err
	}
	if width == 0 || height == 0 {
		return PageHeader{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return PageHeader{Width: width, Height: height}, nil
}

// ReadPixels reads the pixel data announced by h. The buffer buf is
// reused when its capacity suffices; otherwise a new buffer is
// allocated. This is the only allocation point in the decoder, and it
// happens strictly after the caller has seen the dimensions — a caller
// enforcing a size ceiling rejects the page between [Decoder.NextPage]
// and this call, and the oversized buffer is never created.
func (d *Decoder) ReadPixels(h PageHeader, buf []byte) ([]byte, error) {
	n := h.PixelLen()
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading %dx%d pixel data", ErrTruncated, h.Width, h.Height)
		}
		return nil, fmt.Errorf("reading %dx%d pixel data: %w", h.Width, h.Height, err)
	}
	return buf, nil
}

// DecodePage reads one complete page (header plus pixels) into a fresh
// buffer. Convenience for callers that do not enforce per-page ceilings
// or reuse buffers; the conversion driver uses the two-step form.
func (d *Decoder) DecodePage() (*Page, error) {
	h, err := d.NextPage()
	if err != nil {
		return nil, err
	}
	rgb, err := d.ReadPixels(h, nil)
	if err != nil {
		return nil, err
	}
	return &Page{Width: h.Width, Height: h.Height, RGB: rgb}, nil
}

// Encoder writes a pixel stream. The rasterizer side of the protocol:
// [Encoder.WriteHeader] once, then [Encoder.WritePage] per page.
//
// The encoder is not safe for concurrent use.
type Encoder struct {
	w       io.Writer
	scratch [IntBytes]byte
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) writeUint16(v uint16) error {
	binary.BigEndian.PutUint16(e.scratch[:], v)
	_, err := e.w.Write(e.scratch[:])
	return err
}

// WriteHeader writes the stream prologue.
func (e *Encoder) WriteHeader(h Header) error {
	if err := e.writeUint16(h.Pages); err != nil {
		return fmt.Errorf("writing page count: %w", err)
	}
	return nil
}

// WritePage writes one page: dimensions, then pixel data. The page is
// validated first so a malformed buffer cannot desynchronize the
// stream.
func (e *Encoder) WritePage(p *Page) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := e.writeUint16(p.Width); err != nil {
		return fmt.Errorf("writing page width: %w", err)
	}
	if err := e.writeUint16(p.Height); err != nil {
		return fmt.Errorf("writing page height: %w", err)
	}
	if _, err := e.w.Write(p.RGB); err != nil {
		return fmt.Errorf("writing %dx%d pixel data: %w", p.Width, p.Height, err)
	}
	return nil
}
