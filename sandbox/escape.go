// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// EscapeTest defines a test that attempts to break out of the sandbox.
// A successful test means the escape was BLOCKED (returned nil).
// A failed test means the escape SUCCEEDED (returned an error describing how).
//
// The battery runs inside the conversion sandbox itself, where the
// rasterizer would run. Every probe models something a malicious
// document could attempt after compromising the rasterizer process.
type EscapeTest struct {
	Name        string
	Description string
	Category    string // "network", "filesystem", "process", "privilege"
	Severity    string // "critical", "high", "medium", "low"
	Run         func(ctx context.Context) error
}

// EscapeTestResult holds the result of running an escape test.
type EscapeTestResult struct {
	Test   *EscapeTest
	Passed bool   // True if escape was blocked.
	Error  string // If escape succeeded, describes how.
}

// EscapeTests contains all escape detection tests.
var EscapeTests = []EscapeTest{
	// Network isolation tests.
	{
		Name:        "network-external",
		Description: "Attempt to connect to external host",
		Category:    "network",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			conn, err := net.DialTimeout("tcp", "1.1.1.1:80", 5*time.Second)
			if err != nil {
				return nil // Good - connection blocked.
			}
			conn.Close()
			return fmt.Errorf("external network connection succeeded to 1.1.1.1:80")
		},
	},
	{
		Name:        "network-localhost",
		Description: "Attempt to connect to localhost",
		Category:    "network",
		Severity:    "high",
		Run: func(ctx context.Context) error {
			// Try common localhost ports.
			ports := []int{22, 80, 443, 8080}
			for _, port := range ports {
				conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 1*time.Second)
				if err == nil {
					conn.Close()
					return fmt.Errorf("localhost connection succeeded to port %d", port)
				}
			}
			return nil // Good - all connections blocked.
		},
	},
	{
		Name:        "network-dns",
		Description: "Attempt DNS resolution",
		Category:    "network",
		Severity:    "medium",
		Run: func(ctx context.Context) error {
			_, err := net.LookupHost("example.com")
			if err != nil {
				return nil // Good - DNS blocked.
			}
			return fmt.Errorf("DNS resolution succeeded for example.com")
		},
	},
	{
		Name:        "network-interfaces",
		Description: "Check for network interfaces beyond loopback",
		Category:    "network",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			// Both the outer container and the runsc sandbox run with
			// networking disabled, so at most a loopback device should
			// be visible.
			interfaces, err := net.Interfaces()
			if err != nil {
				return nil // Can't enumerate - nothing to reach.
			}
			for _, iface := range interfaces {
				if iface.Flags&net.FlagLoopback != 0 {
					continue
				}
				return fmt.Errorf("non-loopback interface present: %s", iface.Name)
			}
			return nil
		},
	},

	// Filesystem isolation tests.
	{
		Name:        "filesystem-shadow",
		Description: "Attempt to read /etc/shadow",
		Category:    "filesystem",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			_, err := os.ReadFile("/etc/shadow")
			if err != nil {
				return nil // Good - read blocked.
			}
			return fmt.Errorf("read /etc/shadow succeeded")
		},
	},
	{
		Name:        "filesystem-home",
		Description: "Attempt to read user data under home directories",
		Category:    "filesystem",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			// /home and /root are masked with empty tmpfs; anything
			// private found under them means the masking is broken.
			paths := []string{
				"/home",
				"/root",
			}
			for _, path := range paths {
				entries, err := os.ReadDir(path)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if !e.IsDir() {
						continue
					}
					homePath := path + "/" + e.Name()
					testPaths := []string{
						homePath + "/.ssh",
						homePath + "/.gnupg",
						homePath + "/.bashrc",
					}
					for _, testPath := range testPaths {
						if _, err := os.Stat(testPath); err == nil {
							return fmt.Errorf("user data accessible: %s", testPath)
						}
					}
				}
			}
			return nil // Good - home directories are bare.
		},
	},
	{
		Name:        "filesystem-write-rootfs",
		Description: "Attempt to write to the read-only root filesystem",
		Category:    "filesystem",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			// /etc and /usr come from the read-only rootfs; /boot and
			// /sbin are read-only tmpfs masks.
			paths := []string{
				"/etc/test-escape",
				"/usr/test-escape",
				"/boot/test-escape",
				"/sbin/test-escape",
			}
			for _, path := range paths {
				f, err := os.Create(path)
				if err == nil {
					f.Close()
					os.Remove(path)
					return fmt.Errorf("write to read-only area succeeded: %s", path)
				}
			}
			return nil // Good - writes blocked.
		},
	},
	{
		Name:        "filesystem-scratch-write",
		Description: "Verify scratch areas are writable",
		Category:    "filesystem",
		Severity:    "medium",
		Run: func(ctx context.Context) error {
			// This test is inverted - we WANT these to succeed. The
			// office toolchain cannot run without a writable /tmp and
			// home directory.
			paths := []string{
				"/tmp/.airlock-test-write",
				os.Getenv("HOME") + "/.airlock-test-write",
			}
			content := []byte("test")

			for _, testFile := range paths {
				if err := os.WriteFile(testFile, content, 0644); err != nil {
					return fmt.Errorf("scratch write BLOCKED (should succeed): %v", err)
				}

				readContent, err := os.ReadFile(testFile)
				if err != nil {
					os.Remove(testFile)
					return fmt.Errorf("scratch read BLOCKED (should succeed): %v", err)
				}

				os.Remove(testFile)

				if string(readContent) != string(content) {
					return fmt.Errorf("scratch content mismatch at %s", testFile)
				}
			}

			return nil // Good - scratch areas work.
		},
	},

	// Process isolation tests.
	{
		Name:        "process-host-pids",
		Description: "Attempt to see host PIDs via /proc",
		Category:    "process",
		Severity:    "high",
		Run: func(ctx context.Context) error {
			entries, err := os.ReadDir("/proc")
			if err != nil {
				return nil // Good - /proc not accessible.
			}

			pidCount := 0
			for _, entry := range entries {
				// Check if entry is a PID directory (numeric name).
				if entry.IsDir() {
					name := entry.Name()
					isPid := true
					for _, c := range name {
						if c < '0' || c > '9' {
							isPid = false
							break
						}
					}
					if isPid {
						pidCount++
					}
				}
			}

			// In a PID namespace, we should only see our own process tree.
			// If we see more than ~20 processes, we're likely seeing host PIDs.
			// (The battery itself runs 1-5 PIDs.)
			if pidCount > 20 {
				return fmt.Errorf("host PIDs visible: found %d processes in /proc", pidCount)
			}

			return nil // Good - PID namespace appears isolated.
		},
	},

	// Privilege escalation tests.
	{
		Name:        "privilege-uid",
		Description: "Verify the process is not root",
		Category:    "privilege",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			// The runtime spec pins the process identity to an
			// unprivileged user. Running as root here means the spec
			// was not applied.
			if euid := os.Geteuid(); euid == 0 {
				return fmt.Errorf("running as root (euid 0)")
			}
			return nil
		},
	},
	{
		Name:        "privilege-setuid",
		Description: "Attempt to use setuid binary",
		Category:    "privilege",
		Severity:    "critical",
		Run: func(ctx context.Context) error {
			// Check our effective UID.
			euid := os.Geteuid()

			// Try to find a setuid binary and check if it would escalate.
			// Note: noNewPrivileges should prevent this.
			setuidPaths := []string{
				"/usr/bin/sudo",
				"/usr/bin/su",
				"/usr/bin/passwd",
			}

			for _, path := range setuidPaths {
				info, err := os.Stat(path)
				if err != nil {
					continue
				}

				// Check if setuid bit is set.
				if info.Mode()&os.ModeSetuid != 0 {
					// The binary exists and has setuid, but noNewPrivileges
					// should prevent privilege escalation. We can't easily
					// test execution without actually running it, so we
					// just note that it exists.
					// In a properly sandboxed environment, executing it
					// won't grant elevated privileges.
					_ = euid // Would need to exec and check euid change.
				}
			}

			// This test is mostly a sanity check - the real protection is
			// noNewPrivileges in the runtime spec plus the empty
			// capability sets.
			return nil
		},
	},
	{
		Name:        "privilege-mount",
		Description: "Attempt to mount filesystem",
		Category:    "privilege",
		Severity:    "high",
		Run: func(ctx context.Context) error {
			// Try to create a directory and mount something.
			testDir := "/tmp/.airlock-test-mount"
			if err := os.MkdirAll(testDir, 0755); err != nil {
				return nil // Can't even create directory.
			}
			defer os.RemoveAll(testDir)

			// Try to mount tmpfs (requires CAP_SYS_ADMIN).
			// We can't use syscall.Mount directly without the capability,
			// so we just check if /proc/mounts is writable.
			if _, err := os.OpenFile("/proc/mounts", os.O_RDWR, 0); err == nil {
				return fmt.Errorf("/proc/mounts is writable")
			}

			return nil // Good - mount blocked.
		},
	},
}

// EscapeTestRunner runs escape tests inside a sandbox.
type EscapeTestRunner struct {
	tests   []EscapeTest
	results []EscapeTestResult
}

// NewEscapeTestRunner creates a new runner with all tests.
func NewEscapeTestRunner() *EscapeTestRunner {
	return &EscapeTestRunner{
		tests:   EscapeTests,
		results: make([]EscapeTestResult, 0),
	}
}

// RunAll runs all escape tests and returns results.
func (r *EscapeTestRunner) RunAll(ctx context.Context) []EscapeTestResult {
	r.results = make([]EscapeTestResult, 0, len(r.tests))

	for i := range r.tests {
		test := &r.tests[i]
		result := EscapeTestResult{
			Test:   test,
			Passed: true,
		}

		// Run with timeout.
		testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := test.Run(testCtx)
		cancel()

		if err != nil {
			result.Passed = false
			result.Error = err.Error()
		}

		r.results = append(r.results, result)
	}

	return r.results
}

// RunCategory runs tests in a specific category.
func (r *EscapeTestRunner) RunCategory(ctx context.Context, category string) []EscapeTestResult {
	r.results = make([]EscapeTestResult, 0)

	for i := range r.tests {
		test := &r.tests[i]
		if test.Category != category {
			continue
		}

		result := EscapeTestResult{
			Test:   test,
			Passed: true,
		}

		testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := test.Run(testCtx)
		cancel()

		if err != nil {
			result.Passed = false
			result.Error = err.Error()
		}

		r.results = append(r.results, result)
	}

	return r.results
}

// Summary returns a summary of test results.
func (r *EscapeTestRunner) Summary() (passed, failed int) {
	for _, result := range r.results {
		if result.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}

// PrintResults writes test results to a writer.
func (r *EscapeTestRunner) PrintResults(w io.Writer) {
	fmt.Fprintf(w, "Running escape detection tests...\n\n")

	for _, result := range r.results {
		var status string
		if result.Passed {
			status = "[PASS]"
		} else {
			status = "[FAIL]"
		}

		fmt.Fprintf(w, "%s %s: %s\n", status, result.Test.Name, result.Test.Description)
		if !result.Passed {
			fmt.Fprintf(w, "       Escape vector: %s\n", result.Error)
		}
	}

	passed, failed := r.Summary()
	fmt.Fprintf(w, "\n%d/%d tests passed", passed, passed+failed)
	if failed == 0 {
		fmt.Fprintf(w, " - sandbox isolation verified\n")
	} else {
		fmt.Fprintf(w, " - %d escape vectors detected!\n", failed)
	}
}

// HasFailures returns true if any escape succeeded.
func (r *EscapeTestRunner) HasFailures() bool {
	_, failed := r.Summary()
	return failed > 0
}
