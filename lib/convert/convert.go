// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package convert drives one document through the sandboxed
// conversion pipeline: spawn a rasterizer, stream the document in,
// decode the pixel stream, reconstruct a PDF, and always tear the
// sandbox down before reporting a terminal state.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/bureau-foundation/airlock/lib/clock"
	"github.com/bureau-foundation/airlock/lib/document"
	"github.com/bureau-foundation/airlock/lib/isolation"
	"github.com/bureau-foundation/airlock/lib/pdf"
	"github.com/bureau-foundation/airlock/lib/pixels"
	"github.com/bureau-foundation/airlock/lib/raster"
)

// errPageLimit marks host-side resource violations that the codec
// itself does not police.
var errPageLimit = errors.New("page count or dimensions exceed limits")

// Options configures a Driver.
type Options struct {
	Provider isolation.Provider

	// Clock defaults to the real clock. Tests inject a fake to
	// drive timeout and teardown timing.
	Clock clock.Clock

	// Timeout computes the conversion budget. Nil means
	// DefaultTimeoutPolicy.
	Timeout TimeoutPolicy

	// OCR adds a searchable text layer to the output.
	OCR *pdf.OCROptions

	// Limits caps pages and dimensions. Zero value means defaults.
	Limits pdf.Limits

	// DPI the sandbox renders at. Zero means pdf.DefaultDPI.
	DPI int

	// RedactErrors replaces failure messages with a fixed generic
	// string; detail goes to debug logs only.
	RedactErrors bool

	// Debug enables sandbox-side debug logging and host-side
	// logging of sanitized sandbox stderr.
	Debug bool

	Logger *slog.Logger
}

// Driver converts documents, one sandbox at a time.
type Driver struct {
	opts Options
}

// New validates options and builds a driver.
func New(opts Options) (*Driver, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("no isolation provider configured")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Timeout == nil {
		opts.Timeout = DefaultTimeoutPolicy
	}
	if opts.Limits == (pdf.Limits{}) {
		opts.Limits = pdf.DefaultLimits()
	}
	if opts.DPI == 0 {
		opts.DPI = pdf.DefaultDPI
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts}, nil
}

// Convert runs one document end to end and reports its terminal
// state. The sandbox is always stopped, via the escalation ladder,
// before this returns, success included.
func (d *Driver) Convert(ctx context.Context, doc *document.Document, events chan<- ProgressEvent) Result {
	start := d.opts.Clock.Now()
	doc.MarkConverting()

	result := d.convert(ctx, doc, events)
	result.Doc = doc
	result.Duration = d.opts.Clock.Now().Sub(start)

	switch result.State {
	case StateCompleted:
		doc.MarkSafe()
	default:
		doc.MarkFailed()
	}

	if result.Failure != nil && d.opts.RedactErrors {
		d.opts.Logger.Debug("conversion failure detail",
			"document", doc.ID(), "kind", result.Failure.Kind.String(),
			"msg", result.Failure.Msg, "err", result.Failure.Err)
		result.Failure.Msg = RedactedMessage
	}
	return result
}

func (d *Driver) convert(ctx context.Context, doc *document.Document, events chan<- ProgressEvent) Result {
	logger := d.opts.Logger.With("document", doc.ID())

	size, err := doc.Size()
	if err != nil {
		return failed(StartupFailure, "The document could not be read", err)
	}
	budget := d.opts.Timeout(size, 0)
	logger.Debug("starting conversion", "size", size, "budget", budget)

	if err := d.opts.Provider.Available(ctx); err != nil {
		return failed(StartupFailure, "The conversion sandbox is not available", err)
	}
	handle, err := d.opts.Provider.Start(ctx, isolation.Job{
		DocumentID: doc.ID(),
		SizeBytes:  size,
		Debug:      d.opts.Debug,
	})
	if err != nil {
		return failed(StartupFailure, "The conversion sandbox could not be started", err)
	}

	session, err := pdf.Begin(pdf.SessionOptions{
		DPI:       d.opts.DPI,
		InputPath: doc.InputPath(),
		OCR:       d.opts.OCR,
		Limits:    d.opts.Limits,
		Logger:    logger,
	})
	if err != nil {
		isolation.EnsureStop(context.Background(), handle, d.opts.Clock, logger)
		return failed(StartupFailure, "The output session could not be opened", err)
	}

	// Budget expiry and context cancellation both destroy the
	// sandbox; the blocked pipe reads below unblock through that.
	var timedOut atomic.Bool
	timer := startBudget(d.opts.Clock, budget, func() {
		timedOut.Store(true)
		handle.Kill()
	})
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			handle.Kill()
		case <-watchDone:
		}
	}()

	pages, convErr := d.run(handle, doc, session, timer, size, events)

	timer.Stop()
	close(watchDone)

	// Teardown happens on every path before a terminal state is
	// reported. It runs on a background context: a cancelled job
	// still must not leak its sandbox.
	if err := isolation.EnsureStop(context.Background(), handle, d.opts.Clock, logger); err != nil {
		logger.Error("sandbox survived the stop ladder", "err", err)
	}

	exitCode, exitKnown := d.collectExit(handle)
	if d.opts.Debug {
		logger.Debug("sandbox stderr", "tail", handle.Stderr().String())
	}

	switch {
	case ctx.Err() != nil:
		return Result{State: StateCancelled, Failure: &Failure{
			Kind: Cancelled, Msg: "The conversion was cancelled", Err: ctx.Err(),
		}}
	case timedOut.Load():
		return failed(Timeout, "The conversion timed out", convErr)
	case errors.Is(convErr, errPageLimit):
		return failed(ResourceLimitExceeded, "The document exceeds size limits", convErr)
	case errors.Is(convErr, pdf.ErrPageTooLarge) || errors.Is(convErr, pdf.ErrTooManyPages):
		return failed(ResourceLimitExceeded, "The document exceeds size limits", convErr)
	case exitKnown && exitCode != 0:
		return failed(AbnormalExit, raster.MessageForExit(exitCode), convErr)
	case errors.Is(convErr, pixels.ErrInvalidDimensions):
		return failed(CodecInvalidDimensions, "The sandbox produced an invalid page", convErr)
	case errors.Is(convErr, pixels.ErrTruncated):
		return failed(CodecTruncated, "The sandbox stopped mid-page", convErr)
	case convErr != nil:
		return failed(IoError, "Reading from the sandbox failed", convErr)
	}

	summary, err := session.Finish(doc.OutputPath())
	if err != nil {
		return failed(IoError, "Writing the safe PDF failed", err)
	}
	logger.Info("conversion complete",
		"pages", summary.Pages, "bytes", summary.Bytes, "output", doc.OutputPath())
	return Result{
		State:      StateCompleted,
		OutputPath: doc.OutputPath(),
		Digest:     summary.Digest,
		Pages:      pages,
	}
}

func failed(kind FailureKind, msg string, err error) Result {
	return Result{State: StateFailed, Failure: &Failure{Kind: kind, Msg: msg, Err: err}}
}

// run streams the document in and the pixel pages out. Input upload
// and output decode proceed concurrently so a large document cannot
// deadlock on full pipes.
func (d *Driver) run(handle isolation.Handle, doc *document.Document, session *pdf.Session, timer *budgetTimer, size int64, events chan<- ProgressEvent) (int, error) {
	uploadErr := make(chan error, 1)
	go func() {
		uploadErr <- uploadDocument(handle.Stdin(), doc.InputPath())
	}()

	decoder := pixels.NewDecoder(handle.Stdout())
	header, err := decoder.Header()
	if err != nil {
		return 0, err
	}
	pages := int(header.Pages)
	if pages == 0 || pages > d.opts.Limits.MaxPages {
		return pages, fmt.Errorf("%w: %d pages (limit %d)", errPageLimit, pages, d.opts.Limits.MaxPages)
	}
	timer.Extend(d.opts.Timeout(size, pages))
	emit(events, ProgressEvent{
		DocID: doc.ID(), Pages: pages,
		Text: fmt.Sprintf("Document has %d pages", pages),
	})

	var buf []byte
	for i := 1; i <= pages; i++ {
		pageHeader, err := decoder.NextPage()
		if err != nil {
			return pages, err
		}
		// Dimension ceiling before the pixel buffer is sized.
		if int(pageHeader.Width) > d.opts.Limits.MaxWidth ||
			int(pageHeader.Height) > d.opts.Limits.MaxHeight {
			return pages, fmt.Errorf("%w: page %d is %dx%d", errPageLimit,
				i, pageHeader.Width, pageHeader.Height)
		}
		buf, err = decoder.ReadPixels(pageHeader, buf)
		if err != nil {
			return pages, err
		}
		page := &pixels.Page{Width: pageHeader.Width, Height: pageHeader.Height, RGB: buf}
		if err := session.AddPage(page); err != nil {
			return pages, err
		}
		emit(events, ProgressEvent{
			DocID: doc.ID(), Page: i, Pages: pages,
			Percentage: float64(i) / float64(pages) * 100,
			Text:       fmt.Sprintf("Converted page %d/%d", i, pages),
		})
	}

	// The upload normally finished long ago; a late failure here
	// means the sandbox never read the whole document, yet still
	// produced every promised page. Treat the pixel stream as
	// authoritative and only log the anomaly.
	if err := <-uploadErr; err != nil {
		d.opts.Logger.Debug("document upload error after complete stream",
			"document", doc.ID(), "err", err)
	}
	return pages, nil
}

func uploadDocument(stdin io.WriteCloser, path string) error {
	f, err := os.Open(path)
	if err != nil {
		stdin.Close()
		return err
	}
	defer f.Close()
	if _, err := io.Copy(stdin, f); err != nil {
		stdin.Close()
		return err
	}
	return stdin.Close()
}

// collectExit retrieves the sandbox exit code, bounded by ExitWait.
// An unknown exit is not an error by itself; classification treats
// it as zero-information.
func (d *Driver) collectExit(handle isolation.Handle) (int, bool) {
	done := make(chan int, 1)
	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		code, err := handle.Wait(waitCtx)
		if err != nil {
			return
		}
		done <- code
	}()
	select {
	case code := <-done:
		return code, true
	case <-d.opts.Clock.After(isolation.ExitWait):
		return 0, false
	}
}

// ConvertAll converts documents sequentially, one sandbox at a time.
// Failures are independent; cancellation marks the remaining
// documents cancelled without starting them.
func (d *Driver) ConvertAll(ctx context.Context, docs []*document.Document, events chan<- ProgressEvent) []Result {
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		if ctx.Err() != nil {
			doc.MarkFailed()
			results = append(results, Result{
				Doc:   doc,
				State: StateCancelled,
				Failure: &Failure{
					Kind: Cancelled,
					Msg:  "The conversion was cancelled",
					Err:  ctx.Err(),
				},
			})
			continue
		}
		results = append(results, d.Convert(ctx, doc, events))
	}
	return results
}
