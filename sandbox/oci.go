// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ociVersion is the runtime spec version airlock emits. runsc accepts
// 1.0.x bundles, and nothing newer is needed.
const ociVersion = "1.0.0"

// RootfsDir is the root filesystem path inside a bundle directory.
const RootfsDir = "rootfs"

// ConfigFile is the runtime spec filename inside a bundle directory.
const ConfigFile = "config.json"

// Spec is the OCI runtime configuration serialized to a bundle's
// config.json and handed to runsc.
type Spec struct {
	Version  string      `json:"ociVersion"`
	Process  Process     `json:"process"`
	Root     Root        `json:"root"`
	Hostname string      `json:"hostname,omitempty"`
	Mounts   []SpecMount `json:"mounts"`
	Linux    *Linux      `json:"linux,omitempty"`
}

// Process describes the sandboxed process.
type Process struct {
	Terminal        bool            `json:"terminal,omitempty"`
	User            User            `json:"user"`
	Args            []string        `json:"args"`
	Env             []string        `json:"env,omitempty"`
	Cwd             string          `json:"cwd"`
	Capabilities    *CapabilitySets `json:"capabilities,omitempty"`
	Rlimits         []POSIXRlimit   `json:"rlimits,omitempty"`
	NoNewPrivileges bool            `json:"noNewPrivileges,omitempty"`
}

// User is the identity the sandboxed process runs as.
type User struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// CapabilitySets lists the Linux capabilities granted to the process,
// one list per capability set.
type CapabilitySets struct {
	Bounding    []string `json:"bounding"`
	Effective   []string `json:"effective"`
	Inheritable []string `json:"inheritable"`
	Permitted   []string `json:"permitted"`
}

// POSIXRlimit is a resource limit applied to the process.
type POSIXRlimit struct {
	Type string `json:"type"`
	Hard uint64 `json:"hard"`
	Soft uint64 `json:"soft"`
}

// Root describes the container's root filesystem.
type Root struct {
	Path     string `json:"path"`
	Readonly bool   `json:"readonly"`
}

// SpecMount is a mount entry in the runtime spec. It is distinct from
// [Mount], the profile-level description it is built from.
type SpecMount struct {
	Destination string   `json:"destination"`
	Type        string   `json:"type"`
	Source      string   `json:"source"`
	Options     []string `json:"options,omitempty"`
}

// Linux holds the Linux-specific section of the spec.
type Linux struct {
	Namespaces []LinuxNamespace `json:"namespaces,omitempty"`
}

// LinuxNamespace requests a new namespace of the given type.
type LinuxNamespace struct {
	Type string `json:"type"`
}

// BuildOptions holds options for building an OCI runtime spec.
type BuildOptions struct {
	// Profile is the resolved and expanded profile to use.
	Profile *Profile

	// Command is the command to run inside the sandbox.
	Command []string

	// ExtraEnv are additional environment variables. They override
	// profile values on key collision.
	ExtraEnv map[string]string
}

// Builder builds OCI runtime specs from profiles.
type Builder struct {
	env map[string]string
}

// NewBuilder creates a new builder.
func NewBuilder() *Builder {
	return &Builder{env: make(map[string]string)}
}

// Build constructs the runtime spec from options.
func (b *Builder) Build(opts *BuildOptions) (*Spec, error) {
	if opts.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}

	b.env = make(map[string]string)

	mounts, err := buildMounts(opts.Profile)
	if err != nil {
		return nil, err
	}

	spec := &Spec{
		Version: ociVersion,
		Process: Process{
			User: User{
				UID: opts.Profile.Security.UID,
				GID: opts.Profile.Security.GID,
			},
			Args:            opts.Command,
			Env:             b.buildEnv(opts),
			Cwd:             "/",
			Capabilities:    emptyCapabilitySets(),
			NoNewPrivileges: opts.Profile.Security.NoNewPrivileges,
		},
		Root:     Root{Path: RootfsDir, Readonly: true},
		Hostname: opts.Profile.Hostname,
		Mounts:   mounts,
		Linux:    &Linux{Namespaces: buildNamespaces(opts.Profile.Namespaces)},
	}

	if opts.Profile.Resources.HasLimits() {
		spec.Process.Rlimits = []POSIXRlimit{
			{
				Type: "RLIMIT_NOFILE",
				Hard: opts.Profile.Resources.OpenFiles,
				Soft: opts.Profile.Resources.OpenFiles,
			},
		}
	}

	return spec, nil
}

// buildEnv assembles the sandbox environment. Only the profile's
// explicit Environment, the host values named in ForwardEnv, and the
// caller's ExtraEnv ever reach the spec. Host environment variables
// routinely carry secrets (tokens, API keys, agent sockets), and the
// rasterizer handles attacker-controlled documents, so nothing else is
// forwarded.
func (b *Builder) buildEnv(opts *BuildOptions) []string {
	for key, value := range opts.Profile.Environment {
		b.env[key] = value
	}
	for _, key := range opts.Profile.ForwardEnv {
		if value, ok := os.LookupEnv(key); ok {
			b.env[key] = value
		}
	}
	for key, value := range opts.ExtraEnv {
		b.env[key] = value
	}

	// Sort keys for deterministic output.
	keys := make([]string, 0, len(b.env))
	for key := range b.env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+b.env[key])
	}
	return env
}

// buildMounts translates profile mounts into spec mounts, preserving
// order. Tmpfs mounts always carry nosuid,noexec,nodev; nothing the
// rasterizer writes at runtime should ever be executable or a device.
func buildMounts(profile *Profile) ([]SpecMount, error) {
	mounts := make([]SpecMount, 0, len(profile.Filesystem))
	for _, mount := range profile.Filesystem {
		switch mount.Type {
		case MountTypeTmpfs:
			options := []string{"nosuid", "noexec", "nodev"}
			if mount.Mode == MountModeRO {
				options = append(options, "ro")
			}
			options = append(options, mount.Options...)
			mounts = append(mounts, SpecMount{
				Destination: mount.Dest,
				Type:        "tmpfs",
				Source:      "tmpfs",
				Options:     options,
			})

		case MountTypeProc:
			mounts = append(mounts, SpecMount{
				Destination: mount.Dest,
				Type:        "proc",
				Source:      "proc",
			})

		case MountTypeBind:
			if mount.Optional {
				if _, err := os.Stat(mount.Source); os.IsNotExist(err) {
					continue
				}
			}
			options := []string{"rbind"}
			if mount.Mode == MountModeRO {
				options = append(options, "ro")
			} else {
				options = append(options, "rw")
			}
			options = append(options, mount.Options...)
			mounts = append(mounts, SpecMount{
				Destination: mount.Dest,
				Type:        "bind",
				Source:      mount.Source,
				Options:     options,
			})

		default:
			return nil, fmt.Errorf("unknown mount type %q for %s", mount.Type, mount.Dest)
		}
	}
	return mounts, nil
}

// buildNamespaces emits a namespace entry for each namespace the
// profile enables.
func buildNamespaces(ns NamespaceConfig) []LinuxNamespace {
	var namespaces []LinuxNamespace
	if ns.PID {
		namespaces = append(namespaces, LinuxNamespace{Type: "pid"})
	}
	if ns.Network {
		namespaces = append(namespaces, LinuxNamespace{Type: "network"})
	}
	if ns.IPC {
		namespaces = append(namespaces, LinuxNamespace{Type: "ipc"})
	}
	if ns.UTS {
		namespaces = append(namespaces, LinuxNamespace{Type: "uts"})
	}
	if ns.Mount {
		namespaces = append(namespaces, LinuxNamespace{Type: "mount"})
	}
	return namespaces
}

// emptyCapabilitySets returns capability sets with every list present
// but empty. Explicit empty lists (rather than omitted fields) make
// the no-capabilities intent visible in the written config.json.
func emptyCapabilitySets() *CapabilitySets {
	return &CapabilitySets{
		Bounding:    []string{},
		Effective:   []string{},
		Inheritable: []string{},
		Permitted:   []string{},
	}
}

// WriteBundle writes the spec as config.json inside bundleDir. The
// bundle's rootfs directory must already exist; catching a missing
// rootfs here gives a clearer error than runsc's.
func WriteBundle(spec *Spec, bundleDir string) error {
	rootfs := filepath.Join(bundleDir, spec.Root.Path)
	info, err := os.Stat(rootfs)
	if err != nil {
		return fmt.Errorf("bundle rootfs: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("bundle rootfs %s is not a directory", rootfs)
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runtime spec: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(bundleDir, ConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing runtime spec: %w", err)
	}
	return nil
}
