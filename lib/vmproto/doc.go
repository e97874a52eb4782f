// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vmproto implements the framed message protocol between the
// host and a disposable-VM guest agent. The host sends the untrusted
// document as a sequence of chunks; the guest streams back pixel data,
// progress reports, and a final exit code.
//
// Each frame is a fixed header (magic, compression flags, big-endian
// payload length) followed by a CBOR-encoded [Envelope]. Payloads above
// a small threshold are probed for compressibility and sent LZ4- or
// zstd-compressed when that wins; incompressible payloads (which
// dominate, since pixel data from scanned documents compresses poorly)
// travel raw.
//
// The reader side treats every field as untrusted: frames above
// [MaxFrameSize] are rejected before any allocation, and a declared
// uncompressed size that does not match the decompressed output is an
// error, not a tolerated mismatch.
package vmproto
