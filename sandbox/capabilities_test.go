// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"strings"
	"testing"
)

func TestCapabilitiesSkipReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		caps Capabilities
		want string
	}{
		{"nothing available", Capabilities{}, "runsc not installed"},
		{
			"runsc without userns",
			Capabilities{RunscAvailable: true, RunscPath: "/usr/bin/runsc"},
			"user namespaces",
		},
		{
			"fully available",
			Capabilities{RunscAvailable: true, UserNamespacesEnabled: true},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.caps.SkipReason()
			if tt.want == "" {
				if got != "" {
					t.Fatalf("SkipReason() = %q, want empty", got)
				}
				if !tt.caps.CanRunSandbox() {
					t.Fatal("CanRunSandbox() = false with no skip reason")
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Fatalf("SkipReason() = %q, want substring %q", got, tt.want)
			}
			if tt.caps.CanRunSandbox() {
				t.Fatal("CanRunSandbox() = true with a skip reason")
			}
		})
	}
}
