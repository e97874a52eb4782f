// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"fmt"

	"github.com/bureau-foundation/airlock/lib/codec"
)

// ProtocolVersion is exchanged in [Hello]. The magic string already
// pins the frame layout; this pins message semantics within it.
const ProtocolVersion = 1

// Kind identifies a message type in an [Envelope]. The set is closed:
// an unknown kind is a protocol error, never skipped.
type Kind uint8

const (
	// KindHello opens a session in both directions.
	KindHello Kind = 1

	// KindConvertRequest announces the document the host is about to
	// stream. Host to guest only.
	KindConvertRequest Kind = 2

	// KindDocChunk carries a slice of the untrusted document. Host to
	// guest only.
	KindDocChunk Kind = 3

	// KindPixelChunk carries a slice of the pixel stream. Guest to
	// host only.
	KindPixelChunk Kind = 4

	// KindProgress carries a rasterizer progress report. Guest to
	// host only.
	KindProgress Kind = 5

	// KindDone reports the rasterizer's exit code and closes the
	// session. Guest to host only.
	KindDone Kind = 6
)

// String returns the message kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindConvertRequest:
		return "convert_request"
	case KindDocChunk:
		return "doc_chunk"
	case KindPixelChunk:
		return "pixel_chunk"
	case KindProgress:
		return "progress"
	case KindDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Envelope wraps every message on the wire. Body is decoded a second
// time once Kind selects the concrete type.
type Envelope struct {
	Kind Kind             `json:"kind"`
	Body codec.RawMessage `json:"body"`
}

// Hello opens a session. Each side sends one before anything else.
type Hello struct {
	Version int `json:"version"`
}

// ConvertRequest announces a conversion. Size lets the guest compute
// its timeout budget before the first chunk arrives.
type ConvertRequest struct {
	DocID string `json:"doc_id"`
	Size  int64  `json:"size"`
}

// DocChunk is a slice of the source document. Last marks the final
// chunk; an empty Data with Last set is a valid terminator.
type DocChunk struct {
	Data []byte `json:"data"`
	Last bool   `json:"last"`
}

// PixelChunk is a slice of the pixel stream (the lib/pixels wire
// format, re-framed for the VM transport). Last marks stream end.
type PixelChunk struct {
	Data []byte `json:"data"`
	Last bool   `json:"last"`
}

// Progress is a rasterizer progress report relayed by the guest.
type Progress struct {
	Text       string  `json:"text"`
	Percentage float64 `json:"percentage"`
	Error      bool    `json:"error"`
}

// Done closes the session with the rasterizer's exit code.
type Done struct {
	ExitCode int `json:"exit_code"`
}

// kindOf maps a concrete message to its envelope kind.
func kindOf(msg any) (Kind, error) {
	switch msg.(type) {
	case *Hello, Hello:
		return KindHello, nil
	case *ConvertRequest, ConvertRequest:
		return KindConvertRequest, nil
	case *DocChunk, DocChunk:
		return KindDocChunk, nil
	case *PixelChunk, PixelChunk:
		return KindPixelChunk, nil
	case *Progress, Progress:
		return KindProgress, nil
	case *Done, Done:
		return KindDone, nil
	default:
		return 0, fmt.Errorf("vmproto: unsupported message type %T", msg)
	}
}

// WriteMessage encodes msg into an envelope and writes it as one
// frame.
func (w *Writer) WriteMessage(msg any) error {
	kind, err := kindOf(msg)
	if err != nil {
		return err
	}
	body, err := codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", kind, err)
	}
	payload, err := codec.Marshal(Envelope{Kind: kind, Body: body})
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", kind, err)
	}
	return w.WriteFrame(payload)
}

// ReadMessage reads one frame and decodes its envelope. The caller
// switches on Kind and decodes Body with [DecodeBody].
func (r *Reader) ReadMessage() (*Envelope, error) {
	payload, err := r.ReadFrame()
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := codec.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &envelope, nil
}

// DecodeBody decodes an envelope body into the concrete message type
// for its kind.
func DecodeBody[T any](envelope *Envelope) (*T, error) {
	var msg T
	if err := codec.Unmarshal(envelope.Body, &msg); err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", envelope.Kind, err)
	}
	return &msg, nil
}
