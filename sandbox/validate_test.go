// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateProfile(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	v.ValidateProfile(nil)
	if !v.HasErrors() {
		t.Error("expected failure for nil profile")
	}

	v = NewValidator()
	v.ValidateProfile(&Profile{
		Name:     "ok",
		Security: SecurityConfig{UID: 1000, GID: 1000},
	})
	if v.HasErrors() {
		t.Errorf("unexpected errors: %+v", v.Results())
	}

	v = NewValidator()
	v.ValidateProfile(&Profile{Name: "root"})
	if !v.HasErrors() {
		t.Error("expected failure for zero uid/gid")
	}
}

func TestValidateProfileSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	present := filepath.Join(dir, "fonts")
	if err := os.MkdirAll(present, 0o755); err != nil {
		t.Fatal(err)
	}

	profile := &Profile{
		Name: "sources",
		Filesystem: []Mount{
			{Type: MountTypeTmpfs, Dest: "/tmp"},
			{Source: present, Dest: "/usr/share/fonts", Mode: MountModeRO},
			{Source: filepath.Join(dir, "gone"), Dest: "/opt/a", Optional: true},
		},
		Security: SecurityConfig{UID: 1000, GID: 1000},
	}

	v := NewValidator()
	v.ValidateProfileSources(profile, nil)
	if v.HasErrors() {
		t.Errorf("unexpected errors: %+v", v.Results())
	}
	// The optional missing source surfaces as a warning.
	warned := false
	for _, r := range v.Results() {
		if r.Warning && strings.Contains(r.Message, "optional source not found") {
			warned = true
		}
	}
	if !warned {
		t.Error("expected warning for optional missing source")
	}

	// A required missing source fails.
	profile.Filesystem = append(profile.Filesystem, Mount{
		Source: filepath.Join(dir, "gone-required"),
		Dest:   "/opt/b",
	})
	v = NewValidator()
	v.ValidateProfileSources(profile, nil)
	if !v.HasErrors() {
		t.Error("expected failure for required missing source")
	}
}

func TestValidateProfileSourcesVariables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	profile := &Profile{
		Name: "vars",
		Filesystem: []Mount{
			{Source: "${AIRLOCK_TEST_DATA_DIR}", Dest: "/data"},
		},
		Security: SecurityConfig{UID: 1000, GID: 1000},
	}

	// Unresolved reference in a required mount fails.
	v := NewValidator()
	v.ValidateProfileSources(profile, nil)
	if !v.HasErrors() {
		t.Error("expected failure for unresolved variable")
	}

	// Supplying the variable resolves it.
	v = NewValidator()
	v.ValidateProfileSources(profile, Variables{"AIRLOCK_TEST_DATA_DIR": dir})
	if v.HasErrors() {
		t.Errorf("unexpected errors: %+v", v.Results())
	}
}

func TestValidateBundle(t *testing.T) {
	profile := resolveDefault(t)
	spec, err := NewBuilder().Build(&BuildOptions{
		Profile: profile,
		Command: []string{"true"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	bundle := t.TempDir()
	if err := os.MkdirAll(filepath.Join(bundle, RootfsDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := WriteBundle(spec, bundle); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	v := NewValidator()
	v.ValidateBundle(bundle)
	if v.HasErrors() {
		t.Errorf("unexpected errors: %+v", v.Results())
	}

	// Missing config.json.
	v = NewValidator()
	v.ValidateBundle(t.TempDir())
	if !v.HasErrors() {
		t.Error("expected failure for empty bundle")
	}

	// Malformed config.json.
	broken := t.TempDir()
	if err := os.WriteFile(filepath.Join(broken, ConfigFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	v = NewValidator()
	v.ValidateBundle(broken)
	if !v.HasErrors() {
		t.Error("expected failure for malformed spec")
	}

	// Spec present but rootfs missing.
	noRoot := t.TempDir()
	data, err := os.ReadFile(filepath.Join(bundle, ConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(noRoot, ConfigFile), data, 0o644); err != nil {
		t.Fatal(err)
	}
	v = NewValidator()
	v.ValidateBundle(noRoot)
	if !v.HasErrors() {
		t.Error("expected failure for missing rootfs")
	}
}

func TestValidateSeccompPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(samplePolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	v := NewValidator()
	v.ValidateSeccompPolicy(good)
	if v.HasErrors() {
		t.Errorf("unexpected errors: %+v", v.Results())
	}

	// A policy that denies ptrace cannot host runsc.
	noPtrace := filepath.Join(dir, "no-ptrace.json")
	policy := `{"defaultAction": "SCMP_ACT_ERRNO", "syscalls": [{"names": ["read"], "action": "SCMP_ACT_ALLOW"}]}`
	if err := os.WriteFile(noPtrace, []byte(policy), 0o644); err != nil {
		t.Fatal(err)
	}
	v = NewValidator()
	v.ValidateSeccompPolicy(noPtrace)
	if !v.HasErrors() {
		t.Error("expected failure for policy denying ptrace")
	}
	found := false
	for _, r := range v.Results() {
		if !r.Passed && strings.Contains(r.Message, "ptrace") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ptrace failure message, got %+v", v.Results())
	}
}

func TestPrintResults(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	v.pass("alpha", "fine")
	v.warn("beta", "iffy")
	v.fail("gamma", "broken")

	var buf strings.Builder
	v.PrintResults(&buf)
	out := buf.String()

	if !strings.Contains(out, "✓ alpha: fine") {
		t.Errorf("missing pass line:\n%s", out)
	}
	if !strings.Contains(out, "⚠ beta: iffy") {
		t.Errorf("missing warning line:\n%s", out)
	}
	if !strings.Contains(out, "✗ gamma: broken") {
		t.Errorf("missing failure line:\n%s", out)
	}
	if !strings.Contains(out, "Validation failed with 1 error(s)") {
		t.Errorf("missing summary:\n%s", out)
	}

	v = NewValidator()
	v.pass("alpha", "fine")
	buf.Reset()
	v.PrintResults(&buf)
	if !strings.Contains(buf.String(), "Ready to convert documents") {
		t.Errorf("missing ready line:\n%s", buf.String())
	}
}
