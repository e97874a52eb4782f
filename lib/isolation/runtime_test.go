// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/airlock/sandbox"
)

func fakeLookPath(available ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		if slices.Contains(available, name) {
			return "/usr/bin/" + name, nil
		}
		return "", fmt.Errorf("%q: executable file not found in $PATH", name)
	}
}

func TestResolveRuntime(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		env        string
		available  []string
		want       string
		wantErr    bool
	}{
		{"explicit config wins", "docker", "podman", []string{"podman", "docker"}, "docker", false},
		{"explicit config missing", "docker", "", []string{"podman"}, "", true},
		{"env over autodetect", "", "docker", []string{"podman", "docker"}, "docker", false},
		{"env missing is an error", "", "nerdctl", []string{"podman"}, "", true},
		{"podman preferred", "", "", []string{"podman", "docker"}, "podman", false},
		{"docker fallback", "", "", []string{"docker"}, "docker", false},
		{"nothing installed", "", "", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AIRLOCK_CONTAINER_RUNTIME", tt.env)
			provider := NewRuntimeProvider(RuntimeConfig{Runtime: tt.configured})
			provider.lookPath = fakeLookPath(tt.available...)

			got, err := provider.resolveRuntime()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolveRuntime() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveRuntime: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolveRuntime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityArgsPodman(t *testing.T) {
	provider := NewRuntimeProvider(RuntimeConfig{Runtime: "podman", SeccompPath: "/etc/airlock/seccomp.json"})
	provider.runVersion = func(ctx context.Context, runtime string) (string, error) {
		return "4.9.3", nil
	}

	args := provider.securityArgs(context.Background())
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--log-driver none",
		"--security-opt no-new-privileges",
		"--userns nomap",
		"--security-opt seccomp=/etc/airlock/seccomp.json",
		"--cap-drop all",
		"--cap-add SYS_CHROOT",
		"--security-opt label=type:container_engine_t",
		"--network=none",
		"-u airlock",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q:\n%s", want, joined)
		}
	}
}

func TestSecurityArgsOldPodmanSkipsUserns(t *testing.T) {
	provider := NewRuntimeProvider(RuntimeConfig{Runtime: "podman"})
	provider.runVersion = func(ctx context.Context, runtime string) (string, error) {
		return "3.4.4", nil
	}

	args := provider.securityArgs(context.Background())
	if slices.Contains(args, "nomap") {
		t.Fatalf("--userns nomap passed to podman 3.4: %v", args)
	}
}

func TestSecurityArgsVersionProbeFailure(t *testing.T) {
	provider := NewRuntimeProvider(RuntimeConfig{Runtime: "podman"})
	provider.runVersion = func(ctx context.Context, runtime string) (string, error) {
		return "", errors.New("cannot connect")
	}

	args := provider.securityArgs(context.Background())
	if slices.Contains(args, "nomap") {
		t.Fatalf("--userns nomap passed despite version probe failure: %v", args)
	}
}

func TestSecurityArgsDocker(t *testing.T) {
	provider := NewRuntimeProvider(RuntimeConfig{Runtime: "docker"})
	args := provider.securityArgs(context.Background())
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "--security-opt=no-new-privileges:true") {
		t.Errorf("docker args missing no-new-privileges: %s", joined)
	}
	if strings.Contains(joined, "--userns") {
		t.Errorf("docker args include podman-only --userns: %s", joined)
	}
	if strings.Contains(joined, "seccomp=") {
		t.Errorf("seccomp flag present without a configured profile: %s", joined)
	}
}

// A provider with no configured policy writes the built-in one and
// passes it to the engine, so a default run never inherits the
// engine's stock profile.
func TestSecurityArgsDefaultSeccompPolicy(t *testing.T) {
	provider := NewRuntimeProvider(RuntimeConfig{Runtime: "docker"})
	if err := provider.ensureSeccompPolicy(); err != nil {
		t.Fatalf("ensureSeccompPolicy: %v", err)
	}
	defer os.RemoveAll(filepath.Dir(provider.seccompPath))

	args := provider.securityArgs(context.Background())
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "seccomp="+provider.seccompPath) {
		t.Fatalf("args missing the written policy: %s", joined)
	}

	policy, err := sandbox.LoadSeccompPolicy(provider.seccompPath)
	if err != nil {
		t.Fatalf("LoadSeccompPolicy: %v", err)
	}
	if !policy.AllowsSyscall("ptrace") {
		t.Fatal("written policy forbids ptrace, which gVisor needs")
	}

	// A second Start must not write a second copy.
	first := provider.seccompPath
	if err := provider.ensureSeccompPolicy(); err != nil {
		t.Fatalf("ensureSeccompPolicy (second call): %v", err)
	}
	if provider.seccompPath != first {
		t.Fatalf("policy path changed between starts: %q then %q", first, provider.seccompPath)
	}
}

func TestPodmanSupportsUsernsNomap(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"4.1.0", true},
		{"4.0.9", false},
		{"4.1", true},
		{"5.0.0", true},
		{"3.4.4", false},
		{"4.1.0-dev", true},
		{"garbage", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := podmanSupportsUsernsNomap(tt.version); got != tt.want {
			t.Errorf("podmanSupportsUsernsNomap(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestContainerName(t *testing.T) {
	if got := containerName("k3xp9a"); got != "airlock-rasterizer-k3xp9a" {
		t.Fatalf("containerName = %q", got)
	}
}
