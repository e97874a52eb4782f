// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pixels implements the wire format that carries rendered page
// data from the rasterizer sandbox to the trusted host.
//
// The format is deliberately trivial: a page count, then for each page a
// width, a height, and width*height*3 bytes of 8-bit RGB. All integers
// are big-endian uint16. There is no framing, no checksums, and no
// negotiation — the host validates every value it reads and treats any
// deviation as an attack.
//
// Decoding is streaming: [Decoder] holds at most one page of pixel data
// at a time, so a hostile stream cannot force the host to buffer more
// than one page. The decoder enforces only structural validity (nonzero
// dimensions, complete reads). Upper bounds on page count and dimensions
// are policy, owned by the consumer — see the reconstructor's limits —
// and a caller can reject an oversized page after [Decoder.NextPage]
// without the pixel buffer ever being allocated.
//
// This package has no dependencies on other airlock packages.
package pixels
