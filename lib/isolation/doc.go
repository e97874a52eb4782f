// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package isolation runs the untrusted rasterizer in a disposable
// execution context and exposes its pipes to the conversion driver.
//
// Three providers implement the same contract:
//
//   - [RuntimeProvider] runs the rasterizer image under podman or
//     docker with gVisor as the inner runtime: an outer container for
//     portability, an emulated kernel for the actual security
//     boundary.
//   - [VMProvider] delegates the whole conversion to a single-use,
//     network-isolated virtual machine through a qrexec-style client
//     process speaking the vmproto framing.
//   - [NullProvider] runs an injectable script in-process. It
//     provides no isolation and exists for tests and for dry-run
//     plumbing checks only.
//
// Every Start creates a fresh context; nothing survives a terminated
// job. Teardown is uniform across providers: [EnsureStop] walks the
// polite-then-forceful ladder and only returns once the sandbox is
// confirmed gone, so the driver can guarantee no orphaned sandbox
// outlives any job outcome.
package isolation
