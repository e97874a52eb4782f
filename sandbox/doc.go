// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox generates the isolated execution environment for the
// document rasterizer: an OCI runtime bundle executed by gVisor's runsc.
//
// The central type is [Builder], which assembles an OCI runtime [Spec]
// from a [Profile] and writes it as a bundle's config.json. Profiles
// are YAML-driven configurations that declare filesystem mounts,
// namespace isolation, environment variables, resource limits, and the
// sandbox user. Profiles support single inheritance via the Inherit
// field, and all string values undergo variable expansion
// ([Variables].ExpandProfile) before use.
//
// Filesystem isolation is the primary security boundary. The rootfs is
// mounted read-only and every writable path is an explicit tmpfs
// declared in the profile; there is no implicit host filesystem
// visibility and no persistent writable state. The default profile
// blankets every conventionally writable directory (/tmp, /var, /run,
// /home, ...) with tmpfs so a compromised rasterizer cannot modify the
// image, and grants exactly two working areas: /tmp for intermediate
// files and the sandbox user's home for the office suite's profile.
//
// Environment construction is allowlist-only: the spec's environment is
// exactly the profile's Environment map plus any ForwardEnv names
// copied from the invoking process. Nothing is inherited by default —
// host environment variables routinely carry secrets, and the
// rasterizer processes attacker-controlled documents.
//
// [RunscArgs] produces the runsc invocation for a built bundle.
// [LoadSeccompPolicy] loads and validates the syscall policy applied by
// the outer container runtime. [Validator] performs pre-flight checks
// (runsc availability, user namespace support, bundle layout, policy
// syntax, mount source validity). [Capabilities] probes the host for
// available features. [EscapeTestRunner] verifies containment from
// inside a running sandbox by attempting a battery of escapes and
// confirming they all fail.
//
// The package intentionally does not manage the rasterizer process.
// It produces the bundle and argv; process lifecycle (spawning,
// teardown ladders, stream plumbing) is handled by lib/isolation.
package sandbox
