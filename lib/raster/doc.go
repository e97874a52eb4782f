// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package raster implements the sandbox side of a conversion: the
// untrusted document arrives on stdin, is rendered to pages by an
// embedded toolchain (LibreOffice, GraphicsMagick, poppler), and
// leaves as a pixel stream on stdout. Progress reports go to stderr
// as JSON lines.
//
// Everything in this package runs inside the sandbox and is treated
// as compromised by the host. Failures are reported through a closed
// exit-code table ([ExitDocFormatUnsupported] and friends) so the
// host can map them to messages without parsing untrusted text.
//
// The toolchain argv vectors are injectable through [Config], which
// lets tests drive the full pipeline with fake tools and lets the
// host recognize every failure mode without a real LibreOffice
// install.
package raster
