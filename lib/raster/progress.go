// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raster

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressLine is one progress report, emitted as a JSON line on the
// rasterizer's stderr and parsed opportunistically by the host.
type ProgressLine struct {
	Error      bool    `json:"error"`
	Text       string  `json:"text"`
	Percentage float64 `json:"percentage"`
}

// ParseProgressLine decodes one stderr line as a progress report.
// Returns false for anything that is not a progress JSON object —
// toolchain noise shares the same stream and is simply skipped.
func ParseProgressLine(line string) (ProgressLine, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return ProgressLine{}, false
	}
	var p ProgressLine
	if err := json.Unmarshal([]byte(line), &p); err != nil {
		return ProgressLine{}, false
	}
	return p, true
}

// WriteProgressLine emits one progress report as a JSON line on w.
// Marshal failures are swallowed; progress is advisory.
func WriteProgressLine(w io.Writer, p ProgressLine) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}

// Reporter emits progress lines. Safe for concurrent use; the
// pipeline and the pdftoppm stderr scanner both report through it.
type Reporter struct {
	mu         sync.Mutex
	w          io.Writer
	percentage float64
}

// NewReporter creates a reporter writing to w (the rasterizer's
// stderr).
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Update emits a progress line at the current percentage.
func (r *Reporter) Update(text string) {
	r.emit(text, false)
}

// Advance adds delta to the percentage and emits a progress line.
func (r *Reporter) Advance(delta float64, text string) {
	r.mu.Lock()
	r.percentage += delta
	r.mu.Unlock()
	r.emit(text, false)
}

// Set moves the percentage to an absolute value and emits a line.
func (r *Reporter) Set(percentage float64, text string) {
	r.mu.Lock()
	r.percentage = percentage
	r.mu.Unlock()
	r.emit(text, false)
}

// Failure emits an error line. The percentage is left unchanged.
func (r *Reporter) Failure(text string) {
	r.emit(text, true)
}

func (r *Reporter) emit(text string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	WriteProgressLine(r.w, ProgressLine{
		Error:      isError,
		Text:       text,
		Percentage: r.percentage,
	})
}
