// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"fmt"
	"strings"
)

// serialize writes the whole document as PDF 1.4: a catalog, a page
// tree, one shared font when a text layer exists, and per page a
// page object, a content stream, and a flate-compressed DeviceRGB
// image XObject. Cross-reference table and trailer at the end.
func (s *Session) serialize(out *bytes.Buffer) error {
	w := &pdfWriter{out: out}
	w.header()

	hasText := false
	for _, page := range s.pages {
		if len(page.words) > 0 {
			hasText = true
			break
		}
	}

	// Object numbering: 1 catalog, 2 page tree, then the optional
	// font, then three objects per page in page order.
	fontObj := 0
	firstPageObj := 3
	if hasText {
		fontObj = 3
		firstPageObj = 4
	}
	pageObj := func(i int) int { return firstPageObj + 3*i }

	w.beginObject(1)
	w.printf("<< /Type /Catalog /Pages 2 0 R >>")
	w.endObject()

	var kids strings.Builder
	for i := range s.pages {
		fmt.Fprintf(&kids, "%d 0 R ", pageObj(i))
	}
	w.beginObject(2)
	w.printf("<< /Type /Pages /Kids [ %s] /Count %d >>", kids.String(), len(s.pages))
	w.endObject()

	if hasText {
		w.beginObject(fontObj)
		w.printf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
		w.endObject()
	}

	for i, page := range s.pages {
		widthPt := points(page.width, s.opts.DPI)
		heightPt := points(page.height, s.opts.DPI)

		resources := fmt.Sprintf("/XObject << /Im0 %d 0 R >>", pageObj(i)+2)
		if hasText {
			resources += fmt.Sprintf(" /Font << /F1 %d 0 R >>", fontObj)
		}
		w.beginObject(pageObj(i))
		w.printf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << %s >> /Contents %d 0 R >>",
			formatPt(widthPt), formatPt(heightPt), resources, pageObj(i)+1)
		w.endObject()

		content := contentStream(widthPt, heightPt, page.words, s.opts.DPI)
		w.beginObject(pageObj(i) + 1)
		w.stream("<< /Length %d >>", []byte(content))
		w.endObject()

		w.beginObject(pageObj(i) + 2)
		w.stream(fmt.Sprintf(
			"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode /Length %%d >>",
			page.width, page.height), page.deflated)
		w.endObject()
	}

	id := s.hasher.Sum(nil)[:16]
	w.trailer(fmt.Sprintf("%x", id))
	return nil
}

// points converts a pixel length at the given render DPI to PDF
// points (72 per inch).
func points(px, dpi int) float64 {
	return float64(px) * 72 / float64(dpi)
}

// formatPt renders a point value compactly with two decimals.
func formatPt(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// contentStream draws the page image scaled to the full media box,
// then the invisible text layer (render mode 3) positioned per word.
func contentStream(widthPt, heightPt float64, words []Word, dpi int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "q\n%s 0 0 %s 0 0 cm\n/Im0 Do\nQ\n",
		formatPt(widthPt), formatPt(heightPt))

	if len(words) == 0 {
		return b.String()
	}
	b.WriteString("BT\n3 Tr\n")
	for _, word := range words {
		size := points(word.Height, dpi)
		if size < 1 {
			size = 1
		}
		x := points(word.Left, dpi)
		// PDF origin is bottom-left; OCR boxes are top-left.
		y := heightPt - points(word.Top+word.Height, dpi)
		fmt.Fprintf(&b, "/F1 %s Tf\n1 0 0 1 %s %s Tm\n(%s) Tj\n",
			formatPt(size), formatPt(x), formatPt(y), escapeText(word.Text))
	}
	b.WriteString("ET\n")
	return b.String()
}

// escapeText escapes a string for a PDF literal string. Characters
// outside printable ASCII are octal-escaped; the text is invisible,
// it only needs to survive extraction.
func escapeText(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c == '(' || c == ')' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7F:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\%03o", c)
		}
	}
	return b.String()
}

// pdfWriter tracks byte offsets for the cross-reference table.
type pdfWriter struct {
	out     *bytes.Buffer
	offsets []int
}

func (w *pdfWriter) header() {
	// The binary comment line marks the file as non-text for
	// transfer tools.
	w.out.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
}

func (w *pdfWriter) beginObject(num int) {
	for len(w.offsets) < num {
		w.offsets = append(w.offsets, 0)
	}
	w.offsets[num-1] = w.out.Len()
	fmt.Fprintf(w.out, "%d 0 obj\n", num)
}

func (w *pdfWriter) endObject() {
	w.out.WriteString("\nendobj\n")
}

func (w *pdfWriter) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

// stream writes a dictionary (the format receives the payload
// length) followed by the stream payload.
func (w *pdfWriter) stream(dictFormat string, payload []byte) {
	fmt.Fprintf(w.out, dictFormat, len(payload))
	w.out.WriteString("\nstream\n")
	w.out.Write(payload)
	w.out.WriteString("\nendstream")
}

func (w *pdfWriter) trailer(id string) {
	xrefOffset := w.out.Len()
	fmt.Fprintf(w.out, "xref\n0 %d\n", len(w.offsets)+1)
	w.out.WriteString("0000000000 65535 f \n")
	for _, offset := range w.offsets {
		fmt.Fprintf(w.out, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(w.out,
		"trailer\n<< /Size %d /Root 1 0 R /ID [<%s> <%s>] >>\nstartxref\n%d\n%%%%EOF\n",
		len(w.offsets)+1, id, id, xrefOffset)
}
