// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import "fmt"

// Rasterizer exit codes. The table is a wire contract shared with the
// host: the host maps a sandbox exit code to a user-facing message
// without ever displaying text that originated inside the sandbox.
const (
	// ExitDocFormatUnsupported: the input matched no entry in the
	// conversion allow-table.
	ExitDocFormatUnsupported = 10

	// ExitHWPUnsupported: an HWP/HWPX document on a platform whose
	// LibreOffice lacks the Hancom filter.
	ExitHWPUnsupported = 16

	// ExitLibreOffice: LibreOffice exited nonzero while converting
	// an office document to PDF.
	ExitLibreOffice = 20

	// ExitImageConversion: GraphicsMagick exited nonzero while
	// converting an image to PDF.
	ExitImageConversion = 30

	// ExitPageCount: the PDF's page count is outside 1..MaxPages.
	ExitPageCount = 40

	// ExitNoPageCount: pdfinfo output carried no page count.
	ExitNoPageCount = 41

	// ExitPDFToPPM: pdftoppm exited nonzero.
	ExitPDFToPPM = 50

	// ExitPPMHeader: a produced PPM file had a malformed header.
	ExitPPMHeader = 51

	// ExitPPMDepth: a produced PPM file declared a depth other than
	// 8 bits per channel.
	ExitPPMDepth = 52
)

// MaxPages is the largest page count the rasterizer will emit. The
// host enforces the same bound independently; agreement here just
// fails oversized documents earlier and cheaper.
const MaxPages = 10000

// Error is a rasterizer failure carrying its exit code. The message
// is for sandbox-side logs; the host resolves the code through
// [MessageForExit] instead of trusting it.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (exit code %d)", e.Msg, e.Code)
}

// ExitCode returns the code the rasterizer process should exit with.
func (e *Error) ExitCode() int { return e.Code }

// MessageForExit returns the fixed host-side message for a rasterizer
// exit code. Unknown codes get a generic message: new codes in a
// newer sandbox image must not crash an older host.
func MessageForExit(code int) string {
	switch code {
	case ExitDocFormatUnsupported:
		return "The document format is not supported"
	case ExitHWPUnsupported:
		return "HWP / HWPX formats are not supported on this platform"
	case ExitLibreOffice:
		return "Conversion to PDF with LibreOffice failed"
	case ExitImageConversion:
		return "Conversion to PDF with GraphicsMagick failed"
	case ExitPageCount:
		return "The document page count is outside the supported range"
	case ExitNoPageCount:
		return "Number of pages could not be extracted from PDF"
	case ExitPDFToPPM:
		return "Error converting PDF to pixels (pdftoppm)"
	case ExitPPMHeader:
		return "Error converting PDF to pixels (invalid PPM header)"
	case ExitPPMDepth:
		return "Error converting PDF to pixels (invalid PPM depth)"
	default:
		return fmt.Sprintf("The document could not be converted (error %d)", code)
	}
}
