// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SafeSuffix is appended to the input's stem to form the default output
// filename: "report.docx" converts to "report-safe.pdf".
const SafeSuffix = "-safe.pdf"

// ArchiveSubdir is the directory, created next to the input, that
// [Document.Archive] moves the original into after a successful
// conversion.
const ArchiveSubdir = "unsafe"

// idLength is the length of a document ID in characters.
const idLength = 6

// State tracks where a document is in its conversion lifecycle.
type State int

const (
	// StateUnconverted is the initial state: the document has been
	// validated but no conversion has started.
	StateUnconverted State = iota

	// StateConverting means a conversion job currently owns the
	// document.
	StateConverting

	// StateSafe means the safe PDF has been written to the output path.
	StateSafe

	// StateFailed means conversion ended without producing output.
	StateFailed
)

// String returns the lowercase state name for logs.
func (s State) String() string {
	switch s {
	case StateUnconverted:
		return "unconverted"
	case StateConverting:
		return "converting"
	case StateSafe:
		return "safe"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// NewID generates a random document ID: idLength URL-safe characters.
// Panics if the system entropy source fails — this indicates a
// system-level failure that no caller can recover from.
func NewID() string {
	var raw [idLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("document: failed to generate ID: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw[:])[:idLength]
}

// Document is one input file and its conversion bookkeeping. Create it
// with [New]; the zero value is not usable.
type Document struct {
	id         string
	inputPath  string
	outputPath string
	state      State
}

// New validates inputPath and returns a document whose output path
// defaults to the input's stem plus [SafeSuffix], in the same
// directory.
func New(inputPath string) (*Document, error) {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("resolving input path: %w", err)
	}
	if err := validateInput(abs); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(abs, filepath.Ext(abs))
	doc := &Document{
		id:        NewID(),
		inputPath: abs,
		state:     StateUnconverted,
	}
	if err := doc.SetOutputPath(stem + SafeSuffix); err != nil {
		return nil, err
	}
	return doc, nil
}

// ID returns the document's random identifier.
func (d *Document) ID() string { return d.id }

// InputPath returns the validated absolute input path.
func (d *Document) InputPath() string { return d.inputPath }

// OutputPath returns the current output path.
func (d *Document) OutputPath() string { return d.outputPath }

// State returns the current lifecycle state.
func (d *Document) State() State { return d.state }

// Name returns the input's base name, for display.
func (d *Document) Name() string { return filepath.Base(d.inputPath) }

// SetOutputPath validates and records where the safe PDF will be
// written. The path must end in ".pdf", its parent directory must
// exist, and it must not equal the input path.
func (d *Document) SetOutputPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}
	if err := validateOutput(abs, d.inputPath); err != nil {
		return err
	}
	d.outputPath = abs
	return nil
}

// SetOutputDir moves the output into dir, keeping the current output
// base name.
func (d *Document) SetOutputDir(dir string) error {
	return d.SetOutputPath(filepath.Join(dir, filepath.Base(d.outputPath)))
}

// SetSuffix replaces [SafeSuffix] in the default output name. The
// suffix must still end in ".pdf".
func (d *Document) SetSuffix(suffix string) error {
	if !strings.HasSuffix(suffix, ".pdf") {
		return fmt.Errorf("output suffix %q must end in .pdf", suffix)
	}
	stem := strings.TrimSuffix(d.inputPath, filepath.Ext(d.inputPath))
	return d.SetOutputPath(stem + suffix)
}

// MarkConverting records that a conversion job has taken the document.
func (d *Document) MarkConverting() { d.state = StateConverting }

// MarkSafe records a successful conversion.
func (d *Document) MarkSafe() { d.state = StateSafe }

// MarkFailed records a failed conversion.
func (d *Document) MarkFailed() { d.state = StateFailed }

// Archive moves the original input into the [ArchiveSubdir] directory
// next to it, creating the directory if needed. Called only after a
// successful conversion, when the caller asked for the original to be
// put out of reach.
func (d *Document) Archive() error {
	if d.state != StateSafe {
		return fmt.Errorf("refusing to archive %s: state is %s, not safe", d.Name(), d.state)
	}
	dir := filepath.Join(filepath.Dir(d.inputPath), ArchiveSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(d.inputPath))
	if err := os.Rename(d.inputPath, dest); err != nil {
		return fmt.Errorf("archiving original: %w", err)
	}
	return nil
}

// Size returns the input file's size in bytes.
func (d *Document) Size() (int64, error) {
	info, err := os.Stat(d.inputPath)
	if err != nil {
		return 0, fmt.Errorf("stat input: %w", err)
	}
	return info.Size(), nil
}

func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file %q does not exist", path)
		}
		return fmt.Errorf("stat input %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %q is a directory, not a file", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input %q is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("input %q is not readable: %w", path, err)
	}
	f.Close()
	return nil
}

func validateOutput(path, inputPath string) error {
	if !strings.HasSuffix(path, ".pdf") {
		return fmt.Errorf("output %q must end in .pdf", path)
	}
	if path == inputPath {
		return fmt.Errorf("output path equals input path %q", path)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory %q does not exist", dir)
		}
		return fmt.Errorf("stat output directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output parent %q is not a directory", dir)
	}
	return nil
}
