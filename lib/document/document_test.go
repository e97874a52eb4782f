// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really a docx"), 0o644); err != nil {
		t.Fatalf("writing input fixture: %v", err)
	}
	return path
}

func TestNewDerivesSafeOutput(t *testing.T) {
	input := writeInput(t, "report.docx")

	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := filepath.Join(filepath.Dir(input), "report-safe.pdf")
	if doc.OutputPath() != want {
		t.Errorf("OutputPath = %q, want %q", doc.OutputPath(), want)
	}
	if doc.State() != StateUnconverted {
		t.Errorf("State = %s, want unconverted", doc.State())
	}
}

func TestNewMissingInput(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.pdf"))
	if err == nil {
		t.Fatal("New accepted a missing input file")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error %q does not name the missing file condition", err)
	}
}

func TestNewRejectsDirectory(t *testing.T) {
	_, err := New(t.TempDir())
	if err == nil {
		t.Fatal("New accepted a directory as input")
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != idLength {
			t.Fatalf("NewID() = %q, want %d characters", id, idLength)
		}
		if strings.ContainsAny(id, "/+=") {
			t.Fatalf("NewID() = %q contains non-URL-safe characters", id)
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q within 100 draws", id)
		}
		seen[id] = true
	}
}

func TestSetOutputPath(t *testing.T) {
	input := writeInput(t, "memo.pdf")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	outDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"valid", filepath.Join(outDir, "clean.pdf"), ""},
		{"wrong extension", filepath.Join(outDir, "clean.txt"), "must end in .pdf"},
		{"equals input", input, "equals input"},
		{"missing directory", filepath.Join(outDir, "missing", "clean.pdf"), "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.SetOutputPath(tt.path)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("SetOutputPath(%q) failed: %v", tt.path, err)
				}
				if doc.OutputPath() != tt.path {
					t.Errorf("OutputPath = %q, want %q", doc.OutputPath(), tt.path)
				}
				return
			}
			if err == nil {
				t.Fatalf("SetOutputPath(%q) succeeded, want error containing %q", tt.path, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetOutputDir(t *testing.T) {
	input := writeInput(t, "slides.odp")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	outDir := t.TempDir()
	if err := doc.SetOutputDir(outDir); err != nil {
		t.Fatalf("SetOutputDir failed: %v", err)
	}
	want := filepath.Join(outDir, "slides-safe.pdf")
	if doc.OutputPath() != want {
		t.Errorf("OutputPath = %q, want %q", doc.OutputPath(), want)
	}
}

func TestSetSuffix(t *testing.T) {
	input := writeInput(t, "scan.png")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := doc.SetSuffix("-trusted.pdf"); err != nil {
		t.Fatalf("SetSuffix failed: %v", err)
	}
	if !strings.HasSuffix(doc.OutputPath(), "scan-trusted.pdf") {
		t.Errorf("OutputPath = %q, want suffix scan-trusted.pdf", doc.OutputPath())
	}

	if err := doc.SetSuffix("-clean.txt"); err == nil {
		t.Error("SetSuffix accepted a suffix not ending in .pdf")
	}
}

func TestStateTransitions(t *testing.T) {
	input := writeInput(t, "a.pdf")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc.MarkConverting()
	if doc.State() != StateConverting {
		t.Errorf("State = %s, want converting", doc.State())
	}
	doc.MarkSafe()
	if doc.State() != StateSafe {
		t.Errorf("State = %s, want safe", doc.State())
	}
}

func TestArchive(t *testing.T) {
	input := writeInput(t, "evil.docx")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Archiving before the conversion succeeded must refuse.
	if err := doc.Archive(); err == nil {
		t.Fatal("Archive succeeded on an unconverted document")
	}

	doc.MarkConverting()
	doc.MarkSafe()
	if err := doc.Archive(); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	moved := filepath.Join(filepath.Dir(input), ArchiveSubdir, "evil.docx")
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("archived file missing at %q: %v", moved, err)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Errorf("original still present at %q", input)
	}
}

func TestSize(t *testing.T) {
	input := writeInput(t, "sized.pdf")
	doc, err := New(input)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	size, err := doc.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != int64(len("not really a docx")) {
		t.Errorf("Size = %d, want %d", size, len("not really a docx"))
	}
}
