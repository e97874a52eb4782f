// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

// DefaultDPI is the render resolution. 150 DPI matches the historical
// baseline, keeping output file sizes and OCR behavior consistent.
const DefaultDPI = 150

// Config holds the rasterizer toolchain. Every argv is a prefix the
// pipeline appends its own arguments to, so tests inject fake tools
// and the production binary injects the real ones.
type Config struct {
	// WorkDir is scratch space for the input file, the intermediate
	// PDF, and per-page PPM files. Defaults to /tmp — inside the
	// sandbox that is a private tmpfs.
	WorkDir string

	// DPI is the render resolution. Defaults to DefaultDPI.
	DPI int

	// LibreOffice is the office-conversion argv prefix.
	// Defaults to ["libreoffice"].
	LibreOffice []string

	// GM is the image-conversion argv prefix. Defaults to ["gm"].
	GM []string

	// PDFInfo is the page-count argv prefix. Defaults to ["pdfinfo"].
	PDFInfo []string

	// PDFToPPM is the PDF-rendering argv prefix.
	// Defaults to ["pdftoppm"].
	PDFToPPM []string

	// HWPSupported reports whether this platform's LibreOffice
	// carries the Hancom filter. When false, HWP-family documents
	// fail with ExitHWPUnsupported instead of a confusing
	// LibreOffice error.
	HWPSupported bool

	// Logger for pipeline decisions. Nil uses slog.Default.
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.WorkDir == "" {
		out.WorkDir = "/tmp"
	}
	if out.DPI == 0 {
		out.DPI = DefaultDPI
	}
	if len(out.LibreOffice) == 0 {
		out.LibreOffice = []string{"libreoffice"}
	}
	if len(out.GM) == 0 {
		out.GM = []string{"gm"}
	}
	if len(out.PDFInfo) == 0 {
		out.PDFInfo = []string{"pdfinfo"}
	}
	if len(out.PDFToPPM) == 0 {
		out.PDFToPPM = []string{"pdftoppm"}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// hwpTypes is the HWP family subset of the conversion table, used for
// the platform-support check.
var hwpTypes = map[string]bool{
	"application/vnd.hancom.hwp":  true,
	"application/haansofthwp":     true,
	"application/x-hwp":           true,
	"application/vnd.hancom.hwpx": true,
	"application/haansofthwpx":    true,
}

// pagesPattern extracts the page count from pdfinfo output.
var pagesPattern = regexp.MustCompile(`Pages:\s*(\d+)`)

// Rasterize converts one document: reads it fully from stdin, renders
// it with the configured toolchain, and writes the pixel stream to
// stdout. Progress JSON lines go to stderr. The returned error is a
// *Error whose code the process should exit with; any other error is
// an internal failure reported as a generic nonzero exit.
//
// Progress percentages: 0-3% document to PDF, 3-5% page count,
// 5-50% pages to pixels. The remaining half belongs to the host-side
// reconstruction and is reported there.
func Rasterize(ctx context.Context, cfg Config, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg = cfg.withDefaults()
	reporter := NewReporter(stderr)

	inputPath := filepath.Join(cfg.WorkDir, "input_file")
	if err := receiveInput(stdin, inputPath); err != nil {
		return err
	}

	head, err := readHead(inputPath)
	if err != nil {
		return err
	}
	mimeType := DetectMIME(head)
	tool, ok := Route(mimeType)
	if !ok {
		return &Error{Code: ExitDocFormatUnsupported, Msg: fmt.Sprintf("unsupported document type %q", mimeType)}
	}
	if hwpTypes[mimeType] && !cfg.HWPSupported {
		return &Error{Code: ExitHWPUnsupported, Msg: "HWP filter unavailable on this platform"}
	}
	cfg.Logger.Debug("document routed", "mime", mimeType, "tool", tool.String())

	pdfPath, err := toPDF(ctx, cfg, reporter, tool, inputPath)
	if err != nil {
		return err
	}
	reporter.Set(3, "Converted document to PDF")

	pageCount, err := countPages(ctx, cfg, pdfPath)
	if err != nil {
		return err
	}
	reporter.Set(5, fmt.Sprintf("Document has %d pages", pageCount))

	return renderPages(ctx, cfg, reporter, pdfPath, pageCount, stdout)
}

// receiveInput copies the whole document from stdin into the scratch
// directory. The document must be on disk before sniffing: the
// toolchain takes paths, and the pipe must be drained before
// LibreOffice starts so the host's writer never blocks against a
// full pipe.
func receiveInput(stdin io.Reader, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating input file: %w", err)
	}
	if _, err := io.Copy(f, stdin); err != nil {
		f.Close()
		return fmt.Errorf("receiving document: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing input file: %w", err)
	}
	return nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading input head: %w", err)
	}
	return head[:n], nil
}

// toPDF converts the input to a PDF if it is not one already, and
// returns the PDF's path.
func toPDF(ctx context.Context, cfg Config, reporter *Reporter, tool Tool, inputPath string) (string, error) {
	switch tool {
	case ToolNone:
		return inputPath, nil

	case ToolLibreOffice:
		reporter.Update("Converting to PDF using LibreOffice")
		argv := append(append([]string{}, cfg.LibreOffice...),
			"--headless", "--safe-mode", "--convert-to", "pdf",
			"--outdir", cfg.WorkDir, inputPath)
		if _, err := runTool(ctx, cfg.Logger, argv, ExitLibreOffice, "LibreOffice conversion failed"); err != nil {
			return "", err
		}
		return inputPath + ".pdf", nil

	case ToolGraphicsMagick:
		reporter.Update("Converting to PDF using GraphicsMagick")
		argv := append(append([]string{}, cfg.GM...), "convert", inputPath, inputPath+".pdf")
		if _, err := runTool(ctx, cfg.Logger, argv, ExitImageConversion, "GraphicsMagick conversion failed"); err != nil {
			return "", err
		}
		return inputPath + ".pdf", nil

	default:
		return "", fmt.Errorf("unknown tool %v", tool)
	}
}

// countPages extracts and bounds the PDF's page count.
func countPages(ctx context.Context, cfg Config, pdfPath string) (int, error) {
	argv := append(append([]string{}, cfg.PDFInfo...), pdfPath)
	output, err := runTool(ctx, cfg.Logger, argv, ExitNoPageCount, "PDF metadata extraction failed")
	if err != nil {
		return 0, err
	}

	match := pagesPattern.FindSubmatch(output)
	if match == nil {
		return 0, &Error{Code: ExitNoPageCount, Msg: "pdfinfo output carried no page count"}
	}
	pages, err := strconv.Atoi(string(match[1]))
	if err != nil {
		return 0, &Error{Code: ExitNoPageCount, Msg: fmt.Sprintf("unparseable page count %q", match[1])}
	}
	if pages < 1 || pages > MaxPages {
		return 0, &Error{Code: ExitPageCount, Msg: fmt.Sprintf("page count %d outside 1..%d", pages, MaxPages)}
	}
	return pages, nil
}

// renderPages runs pdftoppm and streams each finished page as a pixel
// frame. pdftoppm's -progress flag prints "{page} {total} {path}" on
// stderr after writing each PPM, which is the signal to parse and
// forward that page. Pages arrive in order, so the stream's ordering
// guarantee costs nothing.
func renderPages(ctx context.Context, cfg Config, reporter *Reporter, pdfPath string, pageCount int, stdout io.Writer) error {
	if err := writeStreamHeader(stdout, pageCount); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageBase := filepath.Join(cfg.WorkDir, "page")
	argv := append(append([]string{}, cfg.PDFToPPM...),
		"-r", strconv.Itoa(cfg.DPI), "-progress", pdfPath, pageBase)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	progressPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating pdftoppm stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return &Error{Code: ExitPDFToPPM, Msg: fmt.Sprintf("starting pdftoppm: %v", err)}
	}

	perPage := 45.0 / float64(pageCount)
	var pageErr error
	scanner := bufio.NewScanner(progressPipe)
	for scanner.Scan() {
		page, total, ppmPath, ok := parsePDFToPPMProgress(scanner.Text())
		if !ok {
			// pdftoppm mixes warnings into stderr; only progress
			// lines matter, errors surface through the exit code.
			continue
		}
		if pageErr != nil {
			continue // drain the pipe, the command is being cancelled
		}
		if err := emitPage(ppmPath, stdout); err != nil {
			pageErr = err
			cancel()
			continue
		}
		reporter.Advance(perPage, fmt.Sprintf("Converting page %d/%d to pixels", page, total))
	}

	waitErr := cmd.Wait()
	if pageErr != nil {
		return pageErr
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading pdftoppm progress: %w", err)
	}
	if waitErr != nil {
		return &Error{Code: ExitPDFToPPM, Msg: fmt.Sprintf("pdftoppm failed: %v", waitErr)}
	}
	return nil
}

// parsePDFToPPMProgress parses one "-progress" line. Anything that is
// not exactly three fields with two leading integers is toolchain
// noise.
func parsePDFToPPMProgress(line string) (page, total int, ppmPath string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, "", false
	}
	page, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, "", false
	}
	total, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, "", false
	}
	return page, total, fields[2], true
}

// emitPage parses one PPM file, writes it as a pixel frame, and
// deletes it. Deleting keeps peak scratch usage at one page
// regardless of document size.
func emitPage(ppmPath string, stdout io.Writer) error {
	f, err := os.Open(ppmPath)
	if err != nil {
		return &Error{Code: ExitPDFToPPM, Msg: fmt.Sprintf("opening %s: %v", filepath.Base(ppmPath), err)}
	}
	page, err := ParsePPM(f)
	f.Close()
	if err != nil {
		return err
	}
	if err := writePage(stdout, page); err != nil {
		return err
	}
	return os.Remove(ppmPath)
}

func writeStreamHeader(stdout io.Writer, pageCount int) error {
	encoder := pixels.NewEncoder(stdout)
	if err := encoder.WriteHeader(pixels.Header{Pages: uint16(pageCount)}); err != nil {
		return fmt.Errorf("writing stream header: %w", err)
	}
	return nil
}

func writePage(stdout io.Writer, page *pixels.Page) error {
	if err := pixels.NewEncoder(stdout).WritePage(page); err != nil {
		return fmt.Errorf("writing page frame: %w", err)
	}
	return nil
}

// runTool runs one toolchain command, capturing combined output for
// the sandbox-side debug log. A nonzero exit or spawn failure maps to
// the given rasterizer code.
func runTool(ctx context.Context, logger *slog.Logger, argv []string, code int, msg string) ([]byte, error) {
	logger.Debug("running toolchain command", "argv", argv)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		logger.Debug("toolchain command failed", "argv", argv, "err", err,
			"output", output.String())
		return nil, &Error{Code: code, Msg: fmt.Sprintf("%s: %v", msg, err)}
	}
	return output.Bytes(), nil
}
