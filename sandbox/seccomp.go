// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Seccomp is a syscall policy in the container-engine profile format,
// handed to podman or docker with --security-opt seccomp=<path>. A
// custom policy is needed because some engines' default policies
// forbid ptrace(2), which gVisor's platform layer depends on.
type Seccomp struct {
	DefaultAction   string        `json:"defaultAction"`
	DefaultErrnoRet *uint         `json:"defaultErrnoRet,omitempty"`
	ArchMap         []SeccompArch `json:"archMap,omitempty"`
	Syscalls        []SyscallRule `json:"syscalls,omitempty"`
}

// SeccompArch maps a primary architecture to the sub-architectures
// whose syscalls the policy also covers.
type SeccompArch struct {
	Architecture     string   `json:"architecture"`
	SubArchitectures []string `json:"subArchitectures,omitempty"`
}

// SyscallRule applies an action to a group of syscalls.
type SyscallRule struct {
	Names   []string     `json:"names"`
	Action  string       `json:"action"`
	Args    []SyscallArg `json:"args,omitempty"`
	Comment string       `json:"comment,omitempty"`
}

// SyscallArg restricts a rule to calls whose argument matches.
type SyscallArg struct {
	Index    uint   `json:"index"`
	Value    uint64 `json:"value"`
	ValueTwo uint64 `json:"valueTwo,omitempty"`
	Op       string `json:"op"`
}

// seccompActions are the actions a policy may name.
var seccompActions = map[string]bool{
	"SCMP_ACT_ALLOW":        true,
	"SCMP_ACT_ERRNO":        true,
	"SCMP_ACT_KILL":         true,
	"SCMP_ACT_KILL_PROCESS": true,
	"SCMP_ACT_KILL_THREAD":  true,
	"SCMP_ACT_LOG":          true,
	"SCMP_ACT_NOTIFY":       true,
	"SCMP_ACT_TRACE":        true,
	"SCMP_ACT_TRAP":         true,
}

// LoadSeccompPolicy reads and validates a syscall policy file. JSONC
// extends JSON with // line comments, /* block comments */, and
// trailing commas — comments are stripped before parsing, so policy
// files can document why each syscall group is allowed.
func LoadSeccompPolicy(path string) (*Seccomp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	policy, err := ParseSeccompPolicy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

// ParseSeccompPolicy parses and validates a syscall policy document.
func ParseSeccompPolicy(data []byte) (*Seccomp, error) {
	// Strip comments and trailing commas before parsing as standard JSON.
	stripped := jsonc.ToJSON(data)

	var policy Seccomp
	if err := json.Unmarshal(stripped, &policy); err != nil {
		return nil, fmt.Errorf("parsing syscall policy: %w", err)
	}

	if issues := policy.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid syscall policy: %s", strings.Join(issues, "; "))
	}
	return &policy, nil
}

// Validate checks the policy for structural problems. Returns a list
// of human-readable descriptions; an empty list means the policy is
// valid.
func (s *Seccomp) Validate() []string {
	var issues []string

	if s.DefaultAction == "" {
		issues = append(issues, "defaultAction is required")
	} else if !seccompActions[s.DefaultAction] {
		issues = append(issues, fmt.Sprintf("unknown defaultAction %q", s.DefaultAction))
	}

	for index, rule := range s.Syscalls {
		if len(rule.Names) == 0 {
			issues = append(issues, fmt.Sprintf("syscalls[%d]: names is required", index))
		}
		for _, name := range rule.Names {
			if name == "" {
				issues = append(issues, fmt.Sprintf("syscalls[%d]: empty syscall name", index))
				break
			}
		}
		if rule.Action == "" {
			issues = append(issues, fmt.Sprintf("syscalls[%d]: action is required", index))
		} else if !seccompActions[rule.Action] {
			issues = append(issues, fmt.Sprintf("syscalls[%d]: unknown action %q", index, rule.Action))
		}
	}

	return issues
}

// AllowsSyscall reports whether the policy permits the named syscall,
// either through the default action or an explicit allow rule. Used by
// pre-flight validation to confirm the policy will not break gVisor.
func (s *Seccomp) AllowsSyscall(name string) bool {
	for _, rule := range s.Syscalls {
		for _, ruleName := range rule.Names {
			if ruleName == name {
				return rule.Action == "SCMP_ACT_ALLOW" || rule.Action == "SCMP_ACT_LOG"
			}
		}
	}
	return s.DefaultAction == "SCMP_ACT_ALLOW" || s.DefaultAction == "SCMP_ACT_LOG"
}
