// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/airlock/lib/document"
)

// State is the terminal state of one conversion.
type State int

const (
	StateCompleted State = iota
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FailureKind classifies a failed conversion. The set is closed; the
// CLI and batch reporting switch over it.
type FailureKind int

const (
	// StartupFailure covers everything before the sandbox produced
	// its first byte: provider unavailable, spawn failure, missing
	// input file.
	StartupFailure FailureKind = iota

	// Timeout is budget expiry at any phase.
	Timeout

	// CodecTruncated is a pixel stream that ended mid-structure
	// with a clean sandbox exit.
	CodecTruncated

	// CodecInvalidDimensions is a page header with a zero width or
	// height.
	CodecInvalidDimensions

	// ResourceLimitExceeded is a page count or page dimension over
	// the configured ceiling, detected host-side.
	ResourceLimitExceeded

	// AbnormalExit is a nonzero sandbox exit code; the message
	// comes from the fixed exit-code table, never from the sandbox.
	AbnormalExit

	// IoError is a pipe or file error with a zero or unknown exit.
	IoError

	// Cancelled is context cancellation before completion.
	Cancelled
)

func (k FailureKind) String() string {
	switch k {
	case StartupFailure:
		return "startup-failure"
	case Timeout:
		return "timeout"
	case CodecTruncated:
		return "codec-truncated"
	case CodecInvalidDimensions:
		return "codec-invalid-dimensions"
	case ResourceLimitExceeded:
		return "resource-limit-exceeded"
	case AbnormalExit:
		return "abnormal-exit"
	case IoError:
		return "io-error"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// RedactedMessage replaces failure text shown to external consumers
// when the driver runs with RedactErrors.
const RedactedMessage = "The document could not be converted"

// Failure describes why a conversion did not complete.
type Failure struct {
	Kind FailureKind

	// Msg is safe to display: either a fixed table message or text
	// generated host-side. Never sandbox output.
	Msg string

	// Err is the underlying error for logs and errors.Is checks.
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of one document conversion.
type Result struct {
	Doc     *document.Document
	State   State
	Failure *Failure

	OutputPath string
	Digest     string
	Pages      int
	Duration   time.Duration
}

// ProgressEvent is an advisory progress report. Events are sent
// non-blocking; a slow consumer loses events, never stalls the
// conversion.
type ProgressEvent struct {
	DocID      string
	Page       int
	Pages      int
	Percentage float64
	Text       string
	Err        bool
}

// emit sends an event without blocking.
func emit(events chan<- ProgressEvent, event ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
	}
}
