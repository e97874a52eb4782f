// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/airlock/lib/pixels"
)

// OCROptions enables a searchable invisible text layer. The
// recognizer runs on the trusted host against pixels that already
// passed the sandbox boundary, so it sees no untrusted file formats,
// only raw RGB re-encoded as PPM.
type OCROptions struct {
	// Language is the tesseract language code ("eng", "deu", ...).
	Language string

	// TessdataDir overrides the trained-data directory.
	TessdataDir string

	// Command is the recognizer argv prefix. Empty means
	// ["tesseract"]. Tests point it at a fake.
	Command []string
}

func (o *OCROptions) validate() error {
	if o.Language == "" {
		return fmt.Errorf("OCR language not set")
	}
	return nil
}

func (o *OCROptions) command() []string {
	if len(o.Command) > 0 {
		return o.Command
	}
	return []string{"tesseract"}
}

// Word is one recognized word with its bounding box in pixels at the
// render DPI, origin top-left.
type Word struct {
	Text   string
	Left   int
	Top    int
	Width  int
	Height int
}

// recognize runs the recognizer over one page and returns its words.
// The page travels as a temporary PPM file; tesseract's TSV output
// comes back on stdout.
func (o *OCROptions) recognize(p *pixels.Page, dpi int) ([]Word, error) {
	dir, err := os.MkdirTemp("", "airlock-ocr-")
	if err != nil {
		return nil, fmt.Errorf("creating OCR scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ppmPath := filepath.Join(dir, "page.ppm")
	if err := writePPM(ppmPath, p); err != nil {
		return nil, err
	}

	argv := append([]string{}, o.command()...)
	argv = append(argv, ppmPath, "stdout", "--dpi", strconv.Itoa(dpi), "-l", o.Language)
	if o.TessdataDir != "" {
		argv = append(argv, "--tessdata-dir", o.TessdataDir)
	}
	argv = append(argv, "tsv")

	cmd := exec.Command(argv[0], argv[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w (stderr: %s)",
			argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return parseTSV(string(out))
}

// tsv column indices for the fields we read. The full row is
// level, page_num, block_num, par_num, line_num, word_num,
// left, top, width, height, conf, text.
const (
	tsvLevel  = 0
	tsvLeft   = 6
	tsvTop    = 7
	tsvWidth  = 8
	tsvHeight = 9
	tsvConf   = 10
	tsvText   = 11
	tsvFields = 12
)

// wordLevel is the TSV hierarchy level for individual words.
const wordLevel = 5

// parseTSV extracts confident words from tesseract TSV output.
// Non-word rows and zero-confidence detections are skipped; a
// malformed word row is an error, since silently dropping text would
// defeat the point of the layer.
func parseTSV(output string) ([]Word, error) {
	var words []Word
	for i, line := range strings.Split(output, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header row
		}
		fields := strings.Split(line, "\t")
		if len(fields) < tsvFields {
			continue
		}
		level, err := strconv.Atoi(fields[tsvLevel])
		if err != nil || level != wordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(fields[tsvConf], 64)
		if err != nil || conf <= 0 {
			continue
		}
		text := strings.TrimSpace(fields[tsvText])
		if text == "" {
			continue
		}

		var word Word
		word.Text = text
		for _, parse := range []struct {
			field int
			dst   *int
		}{
			{tsvLeft, &word.Left},
			{tsvTop, &word.Top},
			{tsvWidth, &word.Width},
			{tsvHeight, &word.Height},
		} {
			v, err := strconv.Atoi(fields[parse.field])
			if err != nil {
				return nil, fmt.Errorf("malformed TSV row %d: %q", i, line)
			}
			*parse.dst = v
		}
		words = append(words, word)
	}
	return words, nil
}

// writePPM serializes a page as binary PPM (P6, maxval 255), the
// input format shared with the rasterizer side.
func writePPM(path string, p *pixels.Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "P6\n%d %d\n255\n", p.Width, p.Height); err != nil {
		return err
	}
	if _, err := f.Write(p.RGB); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
