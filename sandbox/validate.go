// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ValidationResult holds the result of a validation check.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Validator performs pre-flight validation for sandbox execution.
type Validator struct {
	results []ValidationResult
	errors  int
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		results: make([]ValidationResult, 0),
	}
}

// Results returns all validation results.
func (v *Validator) Results() []ValidationResult {
	return v.results
}

// HasErrors returns true if any validation failed.
func (v *Validator) HasErrors() bool {
	return v.errors > 0
}

// pass records a successful validation.
func (v *Validator) pass(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
	})
}

// warn records a warning (not a failure).
func (v *Validator) warn(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
		Warning: true,
	})
}

// fail records a validation failure.
func (v *Validator) fail(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  false,
		Message: message,
	})
	v.errors++
}

// ValidateAll runs all validation checks for a sandbox configuration.
// bundleDir and seccompPolicy may be empty when not yet known.
func (v *Validator) ValidateAll(profile *Profile, bundleDir, seccompPolicy string) {
	v.ValidateRunsc()
	v.ValidateUserNamespaces()
	v.ValidateProfile(profile)
	v.ValidateProfileSources(profile, nil)
	if bundleDir != "" {
		v.ValidateBundle(bundleDir)
	}
	if seccompPolicy != "" {
		v.ValidateSeccompPolicy(seccompPolicy)
	}
}

// ValidateRunsc checks that gVisor's runsc is available.
func (v *Validator) ValidateRunsc() {
	path, err := RunscPath()
	if err != nil {
		v.fail("runsc", "runsc not found in standard locations")
		return
	}

	// Check it's executable.
	info, err := os.Stat(path)
	if err != nil {
		v.fail("runsc", fmt.Sprintf("cannot stat %s: %v", path, err))
		return
	}

	if info.Mode()&0111 == 0 {
		v.fail("runsc", fmt.Sprintf("%s is not executable", path))
		return
	}

	// Try to get version.
	cmd := exec.Command(path, "--version")
	output, err := cmd.Output()
	if err != nil {
		v.warn("runsc", fmt.Sprintf("found at %s but --version failed", path))
		return
	}

	version := strings.TrimSpace(string(output))
	v.pass("runsc", fmt.Sprintf("available: %s (%s)", path, version))
}

// ValidateUserNamespaces checks that user namespaces are enabled.
// Rootless runsc cannot start without them.
func (v *Validator) ValidateUserNamespaces() {
	// Check /proc/sys/kernel/unprivileged_userns_clone.
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err != nil {
		// File might not exist on some kernels - that's usually fine.
		if os.IsNotExist(err) {
			v.pass("userns", "user namespaces supported (no clone restriction)")
			return
		}
		v.warn("userns", fmt.Sprintf("cannot check user namespace support: %v", err))
		return
	}

	value := strings.TrimSpace(string(data))
	if value == "0" {
		v.fail("userns", "unprivileged user namespaces are disabled (set kernel.unprivileged_userns_clone=1)")
		return
	}

	v.pass("userns", "user namespaces enabled")
}

// ValidateProfile checks that the profile is valid.
func (v *Validator) ValidateProfile(profile *Profile) {
	if profile == nil {
		v.fail("profile", "profile is nil")
		return
	}

	if err := profile.Validate(); err != nil {
		v.fail("profile", err.Error())
		return
	}

	v.pass("profile", fmt.Sprintf("loaded: %s", profile.Name))
}

// ValidateProfileSources checks that all non-optional bind mount
// sources exist. vars supplies values for ${VAR} references in mount
// sources; unresolved references in required mounts fail.
func (v *Validator) ValidateProfileSources(profile *Profile, vars Variables) {
	if profile == nil {
		return
	}

	for _, mount := range profile.Filesystem {
		// Only bind mounts have host sources.
		if mount.Type != MountTypeBind {
			continue
		}

		source := vars.Expand(mount.Source)

		// Skip variable references that weren't expanded.
		if strings.Contains(source, "${") {
			if mount.Optional {
				continue
			}
			v.fail("mount", fmt.Sprintf("unresolved variable in source: %s", mount.Source))
			continue
		}

		// Check if source exists.
		_, err := os.Stat(source)
		if err != nil {
			if os.IsNotExist(err) {
				if mount.Optional {
					v.warn("mount", fmt.Sprintf("optional source not found: %s -> %s", source, mount.Dest))
				} else {
					v.fail("mount", fmt.Sprintf("source not found: %s -> %s", source, mount.Dest))
				}
			} else {
				v.fail("mount", fmt.Sprintf("cannot access source %s: %v", source, err))
			}
			continue
		}
	}
}

// ValidateBundle checks that a bundle directory holds a parseable
// runtime spec and a rootfs.
func (v *Validator) ValidateBundle(bundleDir string) {
	info, err := os.Stat(bundleDir)
	if err != nil {
		v.fail("bundle", fmt.Sprintf("cannot access: %v", err))
		return
	}
	if !info.IsDir() {
		v.fail("bundle", fmt.Sprintf("not a directory: %s", bundleDir))
		return
	}

	configPath := filepath.Join(bundleDir, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		v.fail("bundle", fmt.Sprintf("cannot read %s: %v", configPath, err))
		return
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		v.fail("bundle", fmt.Sprintf("malformed runtime spec: %v", err))
		return
	}
	if spec.Version == "" {
		v.fail("bundle", "runtime spec has no ociVersion")
		return
	}

	rootfs := filepath.Join(bundleDir, spec.Root.Path)
	rootInfo, err := os.Stat(rootfs)
	if err != nil {
		v.fail("bundle", fmt.Sprintf("rootfs missing: %s", rootfs))
		return
	}
	if !rootInfo.IsDir() {
		v.fail("bundle", fmt.Sprintf("rootfs is not a directory: %s", rootfs))
		return
	}

	v.pass("bundle", fmt.Sprintf("valid: %s (spec %s)", bundleDir, spec.Version))
}

// ValidateSeccompPolicy checks that the syscall policy parses and
// permits ptrace, which gVisor's platform layer depends on. Engine
// default policies commonly forbid it, which is why a policy file is
// supplied at all.
func (v *Validator) ValidateSeccompPolicy(path string) {
	policy, err := LoadSeccompPolicy(path)
	if err != nil {
		v.fail("seccomp", err.Error())
		return
	}

	if !policy.AllowsSyscall("ptrace") {
		v.fail("seccomp", fmt.Sprintf("%s does not allow ptrace(2); runsc will not start under it", path))
		return
	}

	v.pass("seccomp", fmt.Sprintf("policy valid: %s (%d rules)", path, len(policy.Syscalls)))
}

// PrintResults writes validation results to a writer.
func (v *Validator) PrintResults(w io.Writer) {
	for _, r := range v.results {
		var prefix string
		if r.Passed {
			if r.Warning {
				prefix = "⚠"
			} else {
				prefix = "✓"
			}
		} else {
			prefix = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", prefix, r.Name, r.Message)
	}

	fmt.Fprintln(w)
	if v.HasErrors() {
		fmt.Fprintf(w, "Validation failed with %d error(s)\n", v.errors)
	} else {
		fmt.Fprintln(w, "Ready to convert documents")
	}
}
