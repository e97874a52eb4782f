// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"strings"
	"testing"
)

func TestMergeProfiles(t *testing.T) {
	t.Parallel()

	parent := &Profile{
		Name:        "parent",
		Description: "Parent profile",
		Hostname:    "airlock",
		Filesystem: []Mount{
			{Type: MountTypeProc, Dest: "/proc"},
			{Type: MountTypeTmpfs, Dest: "/tmp"},
			{Type: MountTypeTmpfs, Dest: "/home", Mode: "ro"},
		},
		Namespaces: NamespaceConfig{
			PID:     true,
			Network: true,
		},
		Environment: map[string]string{
			"PATH": "/usr/bin",
			"HOME": "/home/airlock",
		},
		ForwardEnv: []string{"LANG"},
		Resources: ResourceConfig{
			OpenFiles: 4096,
		},
		Security: SecurityConfig{
			UID:             1000,
			GID:             1000,
			NoNewPrivileges: true,
		},
	}

	child := &Profile{
		Name:        "child",
		Description: "Child profile",
		Filesystem: []Mount{
			{Type: MountTypeTmpfs, Dest: "/tmp", Mode: "ro"},
			{Type: MountTypeTmpfs, Dest: "/var"},
		},
		Environment: map[string]string{
			"HOME":  "/home/other",
			"EXTRA": "value",
		},
		ForwardEnv: []string{"LANG", "TZ"},
		Resources: ResourceConfig{
			OpenFiles: 1024,
		},
	}

	merged := MergeProfiles(parent, child)

	// Name comes from child.
	if merged.Name != "child" {
		t.Errorf("expected name 'child', got %q", merged.Name)
	}

	// Inherit is cleared after merge.
	if merged.Inherit != "" {
		t.Errorf("expected empty inherit after merge, got %q", merged.Inherit)
	}

	// Description comes from child.
	if merged.Description != "Child profile" {
		t.Errorf("expected 'Child profile', got %q", merged.Description)
	}

	// Hostname inherited from parent.
	if merged.Hostname != "airlock" {
		t.Errorf("expected inherited hostname, got %q", merged.Hostname)
	}

	// Namespaces inherited from parent (child has zero-value NamespaceConfig).
	if !merged.Namespaces.PID || !merged.Namespaces.Network {
		t.Error("expected inherited namespaces")
	}

	// Filesystem: parent's /proc and /home kept, child's /tmp replaces
	// parent's, child's /var appended.
	if len(merged.Filesystem) != 4 {
		t.Fatalf("expected 4 mounts, got %d", len(merged.Filesystem))
	}
	if merged.Filesystem[0].Dest != "/proc" {
		t.Errorf("expected /proc first, got %q", merged.Filesystem[0].Dest)
	}
	if merged.Filesystem[1].Dest != "/tmp" || merged.Filesystem[1].Mode != "ro" {
		t.Errorf("expected child's /tmp override in place, got %+v", merged.Filesystem[1])
	}
	if merged.Filesystem[3].Dest != "/var" {
		t.Errorf("expected child's /var appended last, got %q", merged.Filesystem[3].Dest)
	}

	// Environment: merged (parent PATH kept, child HOME overrides, child EXTRA added).
	if merged.Environment["PATH"] != "/usr/bin" {
		t.Errorf("expected inherited PATH, got %q", merged.Environment["PATH"])
	}
	if merged.Environment["HOME"] != "/home/other" {
		t.Errorf("expected overridden HOME, got %q", merged.Environment["HOME"])
	}
	if merged.Environment["EXTRA"] != "value" {
		t.Errorf("expected EXTRA=value, got %q", merged.Environment["EXTRA"])
	}

	// ForwardEnv: deduplicated, parent order first.
	if len(merged.ForwardEnv) != 2 || merged.ForwardEnv[0] != "LANG" || merged.ForwardEnv[1] != "TZ" {
		t.Errorf("expected forward_env [LANG TZ], got %v", merged.ForwardEnv)
	}

	// Resources: non-zero child fields override.
	if merged.Resources.OpenFiles != 1024 {
		t.Errorf("expected overridden open_files=1024, got %d", merged.Resources.OpenFiles)
	}

	// Security inherited from parent (child has zero-value SecurityConfig).
	if merged.Security.UID != 1000 || !merged.Security.NoNewPrivileges {
		t.Errorf("expected inherited security, got %+v", merged.Security)
	}

	// Verify parent was not mutated.
	if parent.Name != "parent" {
		t.Error("parent was mutated by merge")
	}
	if parent.Environment["HOME"] != "/home/airlock" {
		t.Error("parent environment was mutated by merge")
	}
	if parent.Filesystem[1].Mode != "" {
		t.Error("parent filesystem was mutated by merge")
	}
}

func TestMergeProfilesKeepsCarveOutOrder(t *testing.T) {
	t.Parallel()

	// A tmpfs over /home must precede the writable tmpfs over
	// /home/airlock, or the carve-out gets buried. Replacing the /home
	// mount must not move it past the carve-out.
	parent := &Profile{
		Name: "parent",
		Filesystem: []Mount{
			{Type: MountTypeTmpfs, Dest: "/home", Mode: "ro"},
			{Type: MountTypeTmpfs, Dest: "/home/airlock"},
		},
	}
	child := &Profile{
		Name: "child",
		Filesystem: []Mount{
			{Type: MountTypeTmpfs, Dest: "/home"},
		},
	}

	merged := MergeProfiles(parent, child)

	if len(merged.Filesystem) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(merged.Filesystem))
	}
	if merged.Filesystem[0].Dest != "/home" || merged.Filesystem[0].Mode != "" {
		t.Errorf("expected replaced /home in first position, got %+v", merged.Filesystem[0])
	}
	if merged.Filesystem[1].Dest != "/home/airlock" {
		t.Errorf("expected /home/airlock still second, got %q", merged.Filesystem[1].Dest)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Parallel()

	vars := Variables{
		"ROOTFS":    "/var/lib/airlock/rootfs",
		"STATE_DIR": "/run/airlock",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"${ROOTFS}", "/var/lib/airlock/rootfs"},
		{"${STATE_DIR}", "/run/airlock"},
		{"${ROOTFS}/usr", "/var/lib/airlock/rootfs/usr"},
		{"no vars here", "no vars here"},
		{"${AIRLOCK_UNSET_TEST_VAR}", "${AIRLOCK_UNSET_TEST_VAR}"},
		{"${ROOTFS}:${STATE_DIR}", "/var/lib/airlock/rootfs:/run/airlock"},
	}

	for _, tt := range tests {
		result := vars.Expand(tt.input)
		if result != tt.expected {
			t.Errorf("Expand(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestExpandProfile(t *testing.T) {
	t.Parallel()

	vars := Variables{
		"ROOTFS":     "/var/lib/airlock/rootfs",
		"POLICY_DIR": "/etc/airlock",
	}

	profile := &Profile{
		Name: "test",
		Filesystem: []Mount{
			{Source: "${ROOTFS}/usr", Dest: "/usr", Mode: "ro"},
		},
		Environment: map[string]string{
			"AIRLOCK_ROOT": "${ROOTFS}",
		},
		Security: SecurityConfig{
			UID:           1000,
			GID:           1000,
			SeccompPolicy: "${POLICY_DIR}/seccomp.gvisor.json",
		},
	}

	expanded := vars.ExpandProfile(profile)

	if expanded.Filesystem[0].Source != "/var/lib/airlock/rootfs/usr" {
		t.Errorf("expected expanded mount source, got %q", expanded.Filesystem[0].Source)
	}
	if expanded.Environment["AIRLOCK_ROOT"] != "/var/lib/airlock/rootfs" {
		t.Errorf("expected expanded environment, got %q", expanded.Environment["AIRLOCK_ROOT"])
	}
	if expanded.Security.SeccompPolicy != "/etc/airlock/seccomp.gvisor.json" {
		t.Errorf("expected expanded seccomp policy, got %q", expanded.Security.SeccompPolicy)
	}

	// Original profile should be unchanged.
	if profile.Filesystem[0].Source != "${ROOTFS}/usr" {
		t.Error("original profile was modified")
	}
}

func TestProfileValidation(t *testing.T) {
	t.Parallel()

	security := SecurityConfig{UID: 1000, GID: 1000}

	tests := []struct {
		name      string
		profile   Profile
		expectErr string
	}{
		{
			name: "valid profile",
			profile: Profile{
				Name: "test",
				Filesystem: []Mount{
					{Type: MountTypeProc, Dest: "/proc"},
					{Type: MountTypeTmpfs, Dest: "/tmp"},
					{Source: "/srv/fonts", Dest: "/usr/share/fonts", Mode: "ro"},
				},
				Security: security,
			},
		},
		{
			name: "missing dest",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Type: MountTypeTmpfs}},
				Security:   security,
			},
			expectErr: "dest is required",
		},
		{
			name: "relative dest",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Type: MountTypeTmpfs, Dest: "tmp"}},
				Security:   security,
			},
			expectErr: "must be absolute",
		},
		{
			name: "bind without source",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Dest: "/data"}},
				Security:   security,
			},
			expectErr: "source is required",
		},
		{
			name: "tmpfs with source",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Type: MountTypeTmpfs, Source: "/tmp", Dest: "/tmp"}},
				Security:   security,
			},
			expectErr: "source is not valid",
		},
		{
			name: "unknown mount type",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Type: "overlay", Dest: "/data"}},
				Security:   security,
			},
			expectErr: "unknown mount type",
		},
		{
			name: "invalid mode",
			profile: Profile{
				Name:       "test",
				Filesystem: []Mount{{Type: MountTypeTmpfs, Dest: "/tmp", Mode: "rx"}},
				Security:   security,
			},
			expectErr: "invalid mode",
		},
		{
			name: "root uid",
			profile: Profile{
				Name:     "test",
				Security: SecurityConfig{UID: 0, GID: 1000},
			},
			expectErr: "security.uid must be non-zero",
		},
		{
			name: "root gid",
			profile: Profile{
				Name:     "test",
				Security: SecurityConfig{UID: 1000, GID: 0},
			},
			expectErr: "security.gid must be non-zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.expectErr == "" {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.expectErr)
			}
			if !strings.Contains(err.Error(), tt.expectErr) {
				t.Errorf("expected error containing %q, got %q", tt.expectErr, err.Error())
			}
		})
	}
}

func TestProfileClone(t *testing.T) {
	t.Parallel()

	original := &Profile{
		Name: "original",
		Filesystem: []Mount{
			{Type: MountTypeTmpfs, Dest: "/tmp", Options: []string{"size=64m"}},
		},
		Environment: map[string]string{"HOME": "/home/airlock"},
		ForwardEnv:  []string{"LANG"},
	}

	clone := original.Clone()
	clone.Filesystem[0].Dest = "/var"
	clone.Filesystem[0].Options[0] = "size=1g"
	clone.Environment["HOME"] = "/changed"
	clone.ForwardEnv[0] = "TZ"

	if original.Filesystem[0].Dest != "/tmp" {
		t.Error("clone shares filesystem slice with original")
	}
	if original.Filesystem[0].Options[0] != "size=64m" {
		t.Error("clone shares mount options with original")
	}
	if original.Environment["HOME"] != "/home/airlock" {
		t.Error("clone shares environment map with original")
	}
	if original.ForwardEnv[0] != "LANG" {
		t.Error("clone shares forward_env slice with original")
	}
}
