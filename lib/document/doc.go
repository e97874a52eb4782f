// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package document tracks the documents a conversion run operates on.
//
// A [Document] pairs the untrusted input path with the safe output path
// and a conversion state. Path validation happens here, once, before any
// sandbox is spawned: the input must be a readable regular file, the
// output must end in ".pdf", live in a writable directory, and — the one
// invariant everything downstream relies on — must never equal the input
// path. The reconstructor re-checks that last rule before renaming its
// temp file, but the first line of defense is at construction.
//
// Document IDs are short random tokens used to name sandbox containers
// and correlate log lines. They carry no meaning and are not secrets.
package document
