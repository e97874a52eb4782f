// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"os/exec"
	"strings"
)

// Capabilities describes what sandbox features are available in this
// environment. Detection runs where the bundle will run — inside the
// outer container for production conversions, on the bare host in
// development mode.
type Capabilities struct {
	// RunscAvailable is true if gVisor's runsc is installed.
	RunscAvailable bool

	// RunscPath is the path to runsc if available.
	RunscPath string

	// RunscVersion is the runsc version string.
	RunscVersion string

	// UserNamespacesEnabled is true if unprivileged user namespaces
	// work. Rootless runsc cannot start without them.
	UserNamespacesEnabled bool
}

// DetectCapabilities checks what sandbox features are available.
func DetectCapabilities() *Capabilities {
	caps := &Capabilities{}

	// Check runsc.
	if path, err := RunscPath(); err == nil {
		caps.RunscAvailable = true
		caps.RunscPath = path

		// Get version.
		if out, err := exec.Command(path, "--version").Output(); err == nil {
			caps.RunscVersion = strings.TrimSpace(string(out))
		}
	}

	// Check user namespaces.
	caps.UserNamespacesEnabled = checkUserNamespaces(caps.RunscPath)

	return caps
}

// CanRunSandbox returns true if basic sandbox execution is possible.
func (c *Capabilities) CanRunSandbox() bool {
	return c.RunscAvailable && c.UserNamespacesEnabled
}

// checkUserNamespaces tests if unprivileged user namespaces work.
func checkUserNamespaces(runscPath string) bool {
	// First check the sysctl.
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			return false
		}
	}
	// File not existing usually means userns is allowed.

	if runscPath == "" {
		return false
	}

	// Try to actually start a rootless sandbox: run true inside a
	// throwaway runsc instance with its state in a temp directory.
	stateDir, err := os.MkdirTemp("", "airlock-userns-probe-")
	if err != nil {
		return false
	}
	defer os.RemoveAll(stateDir)

	cmd := exec.Command(runscPath,
		"--rootless=true",
		"--network=none",
		"--root="+stateDir,
		"do", "true",
	)
	return cmd.Run() == nil
}

// SkipReason returns a human-readable reason why sandboxing isn't
// available, or empty string if it is available.
func (c *Capabilities) SkipReason() string {
	if !c.RunscAvailable {
		return "runsc not installed"
	}
	if !c.UserNamespacesEnabled {
		return "unprivileged user namespaces not enabled (set kernel.unprivileged_userns_clone=1)"
	}
	return ""
}
