// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Profile defines the sandbox configuration for a rasterizer variant.
type Profile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Inherit     string            `yaml:"inherit,omitempty"`
	Hostname    string            `yaml:"hostname,omitempty"`
	Filesystem  []Mount           `yaml:"filesystem,omitempty"`
	Namespaces  NamespaceConfig   `yaml:"namespaces,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`

	// ForwardEnv lists host environment variable names whose values are
	// copied into the sandbox at build time. This is the only way a
	// host variable reaches the rasterizer: everything not named here
	// is invisible inside.
	ForwardEnv []string `yaml:"forward_env,omitempty"`

	Resources ResourceConfig `yaml:"resources,omitempty"`
	Security  SecurityConfig `yaml:"security,omitempty"`
}

// Mount defines a filesystem mount in the sandbox.
type Mount struct {
	Source   string   `yaml:"source,omitempty"`
	Dest     string   `yaml:"dest"`
	Mode     string   `yaml:"mode,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	Options  []string `yaml:"options,omitempty"`
	Optional bool     `yaml:"optional,omitempty"`
}

// MountType constants for the Type field.
const (
	MountTypeBind  = ""      // Default: bind mount from the host
	MountTypeTmpfs = "tmpfs" // tmpfs mount
	MountTypeProc  = "proc"  // /proc
)

// MountMode constants for the Mode field.
const (
	MountModeRO = "ro" // Read-only
	MountModeRW = "rw" // Read-write
)

// NamespaceConfig defines which namespaces the sandbox gets. Each true
// field becomes an entry in the OCI spec's linux.namespaces list.
type NamespaceConfig struct {
	PID     bool `yaml:"pid"`
	Network bool `yaml:"network"`
	IPC     bool `yaml:"ipc"`
	UTS     bool `yaml:"uts"`
	Mount   bool `yaml:"mount"`
}

// ResourceConfig defines resource limits applied inside the sandbox.
type ResourceConfig struct {
	// OpenFiles is the RLIMIT_NOFILE hard and soft limit for the
	// rasterizer process. Zero means no rlimit entry is emitted.
	OpenFiles uint64 `yaml:"open_files,omitempty"`
}

// HasLimits returns true if any resource limits are configured.
func (r ResourceConfig) HasLimits() bool {
	return r.OpenFiles > 0
}

// SecurityConfig defines the sandbox process identity and hardening.
type SecurityConfig struct {
	// UID and GID are the unprivileged identity the rasterizer runs
	// as. Never zero in a valid profile: the rasterizer must not be
	// root even inside gVisor.
	UID uint32 `yaml:"uid"`
	GID uint32 `yaml:"gid"`

	NoNewPrivileges bool `yaml:"no_new_privileges"`

	// SeccompPolicy is the path to a JSONC syscall policy applied by
	// the outer container runtime. Empty means the runtime's default
	// policy.
	SeccompPolicy string `yaml:"seccomp_policy,omitempty"`
}

// Clone creates a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	clone := &Profile{
		Name:        p.Name,
		Description: p.Description,
		Inherit:     p.Inherit,
		Hostname:    p.Hostname,
		Namespaces:  p.Namespaces,
		Resources:   p.Resources,
		Security:    p.Security,
	}

	if p.Filesystem != nil {
		clone.Filesystem = make([]Mount, len(p.Filesystem))
		copy(clone.Filesystem, p.Filesystem)
		for i := range clone.Filesystem {
			if p.Filesystem[i].Options != nil {
				clone.Filesystem[i].Options = append([]string(nil), p.Filesystem[i].Options...)
			}
		}
	}
	if p.ForwardEnv != nil {
		clone.ForwardEnv = append([]string(nil), p.ForwardEnv...)
	}
	if p.Environment != nil {
		clone.Environment = make(map[string]string, len(p.Environment))
		for k, v := range p.Environment {
			clone.Environment[k] = v
		}
	}

	return clone
}

// MergeProfiles merges child profile settings into parent.
// Child settings override parent settings.
func MergeProfiles(parent, child *Profile) *Profile {
	result := parent.Clone()
	result.Name = child.Name
	result.Inherit = ""

	if child.Description != "" {
		result.Description = child.Description
	}
	if child.Hostname != "" {
		result.Hostname = child.Hostname
	}

	// Filesystem: a child mount replaces the parent mount with the same
	// dest; new dests append in the child's order. Mount order is
	// preserved because it is meaningful in an OCI spec (a tmpfs over
	// /home must precede the writable tmpfs over /home/airlock).
	if len(child.Filesystem) > 0 {
		replaced := make(map[string]Mount, len(child.Filesystem))
		for _, m := range child.Filesystem {
			replaced[m.Dest] = m
		}
		merged := make([]Mount, 0, len(result.Filesystem)+len(child.Filesystem))
		for _, m := range result.Filesystem {
			if override, ok := replaced[m.Dest]; ok {
				merged = append(merged, override)
				delete(replaced, m.Dest)
				continue
			}
			merged = append(merged, m)
		}
		for _, m := range child.Filesystem {
			if _, stillNew := replaced[m.Dest]; stillNew {
				merged = append(merged, m)
			}
		}
		result.Filesystem = merged
	}

	// Namespaces: child overrides if any are set.
	if child.Namespaces != (NamespaceConfig{}) {
		result.Namespaces = child.Namespaces
	}

	// Environment: merge maps.
	if len(child.Environment) > 0 {
		if result.Environment == nil {
			result.Environment = make(map[string]string)
		}
		for k, v := range child.Environment {
			result.Environment[k] = v
		}
	}

	// ForwardEnv: merge and deduplicate, parent order first.
	if len(child.ForwardEnv) > 0 {
		seen := make(map[string]bool, len(result.ForwardEnv))
		for _, name := range result.ForwardEnv {
			seen[name] = true
		}
		for _, name := range child.ForwardEnv {
			if !seen[name] {
				result.ForwardEnv = append(result.ForwardEnv, name)
				seen[name] = true
			}
		}
	}

	// Resources: non-zero values from the child override.
	if child.Resources.OpenFiles != 0 {
		result.Resources.OpenFiles = child.Resources.OpenFiles
	}

	// Security: child overrides if any are set.
	if child.Security != (SecurityConfig{}) {
		result.Security = child.Security
	}

	return result
}

// Variables holds the variable values for expansion in profiles.
type Variables map[string]string

// Expand expands variables in a string using ${VAR} syntax.
// Falls back to environment variables if not in the Variables map.
func (v Variables) Expand(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]

		if val, ok := v[varName]; ok {
			return val
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}

		// Return original if not found.
		return match
	})
}

// ExpandProfile expands all variables in a profile.
func (v Variables) ExpandProfile(p *Profile) *Profile {
	result := p.Clone()

	for i := range result.Filesystem {
		result.Filesystem[i].Source = v.Expand(result.Filesystem[i].Source)
		result.Filesystem[i].Dest = v.Expand(result.Filesystem[i].Dest)
	}

	for key, val := range result.Environment {
		result.Environment[key] = v.Expand(val)
	}

	result.Security.SeccompPolicy = v.Expand(result.Security.SeccompPolicy)

	return result
}

// Validate checks that a profile is valid.
func (p *Profile) Validate() error {
	var errors []string

	for i, m := range p.Filesystem {
		if m.Dest == "" {
			errors = append(errors, fmt.Sprintf("filesystem[%d]: dest is required", i))
		} else if !strings.HasPrefix(m.Dest, "/") {
			errors = append(errors, fmt.Sprintf("filesystem[%d]: dest %q must be absolute", i, m.Dest))
		}
		switch m.Type {
		case MountTypeBind:
			if m.Source == "" {
				errors = append(errors, fmt.Sprintf("filesystem[%d]: source is required for bind mounts", i))
			}
		case MountTypeTmpfs, MountTypeProc:
			if m.Source != "" {
				errors = append(errors, fmt.Sprintf("filesystem[%d]: source is not valid for %s mounts", i, m.Type))
			}
		default:
			errors = append(errors, fmt.Sprintf("filesystem[%d]: unknown mount type %q", i, m.Type))
		}
		if m.Mode != "" && m.Mode != MountModeRO && m.Mode != MountModeRW {
			errors = append(errors, fmt.Sprintf("filesystem[%d]: invalid mode %q (must be ro or rw)", i, m.Mode))
		}
	}

	// The rasterizer never runs as root, even inside gVisor: a kernel
	// bug in the syscall emulation layer should land in an
	// unprivileged process.
	if p.Security.UID == 0 {
		errors = append(errors, "security.uid must be non-zero")
	}
	if p.Security.GID == 0 {
		errors = append(errors, "security.gid must be non-zero")
	}

	if len(errors) > 0 {
		return fmt.Errorf("profile %q validation failed:\n  %s", p.Name, strings.Join(errors, "\n  "))
	}

	return nil
}
