// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Airlock.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Runtime configures the outer container runtime.
	Runtime RuntimeSettings `yaml:"runtime"`

	// Sandbox configures the inner gVisor sandbox.
	Sandbox SandboxSettings `yaml:"sandbox"`

	// PDF configures host-side PDF reconstruction.
	PDF PDFSettings `yaml:"pdf"`

	// Timeouts configures the conversion budget policy.
	Timeouts TimeoutSettings `yaml:"timeouts"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Runtime  *RuntimeSettings `yaml:"runtime,omitempty"`
	Sandbox  *SandboxSettings `yaml:"sandbox,omitempty"`
	PDF      *PDFSettings     `yaml:"pdf,omitempty"`
	Timeouts *TimeoutSettings `yaml:"timeouts,omitempty"`
}

// RuntimeSettings configures the outer container runtime.
type RuntimeSettings struct {
	// Engine selects the container runtime: "auto" (podman then
	// docker), "podman", or "docker".
	// Default: auto
	Engine string `yaml:"engine"`

	// Image is the rasterizer container image reference.
	Image string `yaml:"image"`

	// SeccompPolicy is the path to the outer-container seccomp
	// profile. Empty uses the built-in restrictive policy, never
	// the runtime's stock profile.
	SeccompPolicy string `yaml:"seccomp_policy"`

	// Debug enables rasterizer debug logging inside the sandbox.
	Debug bool `yaml:"debug"`
}

// SandboxSettings configures the inner gVisor sandbox.
type SandboxSettings struct {
	// Profile is the sandbox profile used when none is specified.
	// Default: rasterizer
	Profile string `yaml:"profile"`

	// ProfileDirs are searched for profile YAML files, in order.
	ProfileDirs []string `yaml:"profile_dirs"`

	// StateDir holds runtime state inside the outer container.
	// Default: /var/run/airlock
	StateDir string `yaml:"state_dir"`

	// BundleDir is where OCI bundles are generated.
	// Default: ${state_dir}/bundle
	BundleDir string `yaml:"bundle_dir"`
}

// PDFSettings configures host-side PDF reconstruction.
type PDFSettings struct {
	// DPI is the render resolution shared with the rasterizer.
	// Default: 150
	DPI int `yaml:"dpi"`

	// OCRLanguage enables OCR when non-empty ("eng", "deu", ...).
	OCRLanguage string `yaml:"ocr_language"`

	// TessdataDir overrides the tesseract trained-data directory.
	TessdataDir string `yaml:"tessdata_dir"`

	// MaxPages, MaxWidth, MaxHeight bound what a conversion may
	// produce. Defaults: 10000 each.
	MaxPages  int `yaml:"max_pages"`
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
}

// TimeoutSettings configures the conversion budget policy.
type TimeoutSettings struct {
	// MinSeconds is the budget floor. Default: 60.
	MinSeconds int `yaml:"min_seconds"`

	// PerMiBSeconds scales the budget with document size. Default: 30.
	PerMiBSeconds int `yaml:"per_mib_seconds"`

	// PerPageSeconds extends the budget once the page count is
	// known. Default: 30.
	PerPageSeconds int `yaml:"per_page_seconds"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Runtime: RuntimeSettings{
			Engine: "auto",
			Image:  "airlock/rasterizer:latest",
		},
		Sandbox: SandboxSettings{
			Profile:     "rasterizer",
			ProfileDirs: []string{"/etc/airlock/profiles"},
			StateDir:    "/var/run/airlock",
			BundleDir:   "${AIRLOCK_STATE:-/var/run/airlock}/bundle",
		},
		PDF: PDFSettings{
			DPI:       150,
			MaxPages:  10000,
			MaxWidth:  10000,
			MaxHeight: 10000,
		},
		Timeouts: TimeoutSettings{
			MinSeconds:     60,
			PerMiBSeconds:  30,
			PerPageSeconds: 30,
		},
	}
}

// Load loads configuration from AIRLOCK_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if AIRLOCK_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("AIRLOCK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AIRLOCK_CONFIG environment variable not set; " +
			"set it to the path of your airlock.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: never expose failure detail, no
		// sandbox debug logging.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Runtime: &RuntimeSettings{Debug: false},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Runtime != nil {
		if overrides.Runtime.Engine != "" {
			c.Runtime.Engine = overrides.Runtime.Engine
		}
		if overrides.Runtime.Image != "" {
			c.Runtime.Image = overrides.Runtime.Image
		}
		if overrides.Runtime.SeccompPolicy != "" {
			c.Runtime.SeccompPolicy = overrides.Runtime.SeccompPolicy
		}
		// Debug is a bool, so we always apply it from overrides.
		c.Runtime.Debug = overrides.Runtime.Debug
	}

	if overrides.Sandbox != nil {
		if overrides.Sandbox.Profile != "" {
			c.Sandbox.Profile = overrides.Sandbox.Profile
		}
		if len(overrides.Sandbox.ProfileDirs) > 0 {
			c.Sandbox.ProfileDirs = overrides.Sandbox.ProfileDirs
		}
		if overrides.Sandbox.StateDir != "" {
			c.Sandbox.StateDir = overrides.Sandbox.StateDir
		}
		if overrides.Sandbox.BundleDir != "" {
			c.Sandbox.BundleDir = overrides.Sandbox.BundleDir
		}
	}

	if overrides.PDF != nil {
		if overrides.PDF.DPI != 0 {
			c.PDF.DPI = overrides.PDF.DPI
		}
		if overrides.PDF.OCRLanguage != "" {
			c.PDF.OCRLanguage = overrides.PDF.OCRLanguage
		}
		if overrides.PDF.TessdataDir != "" {
			c.PDF.TessdataDir = overrides.PDF.TessdataDir
		}
		if overrides.PDF.MaxPages != 0 {
			c.PDF.MaxPages = overrides.PDF.MaxPages
		}
		if overrides.PDF.MaxWidth != 0 {
			c.PDF.MaxWidth = overrides.PDF.MaxWidth
		}
		if overrides.PDF.MaxHeight != 0 {
			c.PDF.MaxHeight = overrides.PDF.MaxHeight
		}
	}

	if overrides.Timeouts != nil {
		if overrides.Timeouts.MinSeconds != 0 {
			c.Timeouts.MinSeconds = overrides.Timeouts.MinSeconds
		}
		if overrides.Timeouts.PerMiBSeconds != 0 {
			c.Timeouts.PerMiBSeconds = overrides.Timeouts.PerMiBSeconds
		}
		if overrides.Timeouts.PerPageSeconds != 0 {
			c.Timeouts.PerPageSeconds = overrides.Timeouts.PerPageSeconds
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"AIRLOCK_STATE": c.Sandbox.StateDir,
		"HOME":          os.Getenv("HOME"),
	}

	c.Sandbox.StateDir = expandVars(c.Sandbox.StateDir, vars)
	vars["AIRLOCK_STATE"] = c.Sandbox.StateDir // Update for dependent paths.

	c.Sandbox.BundleDir = expandVars(c.Sandbox.BundleDir, vars)
	for i, dir := range c.Sandbox.ProfileDirs {
		c.Sandbox.ProfileDirs[i] = expandVars(dir, vars)
	}
	c.Runtime.SeccompPolicy = expandVars(c.Runtime.SeccompPolicy, vars)
	c.PDF.TessdataDir = expandVars(c.PDF.TessdataDir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	engines := []string{"auto", "podman", "docker"}
	if !slices.Contains(engines, c.Runtime.Engine) {
		errs = append(errs, fmt.Errorf("runtime.engine must be one of: %v", engines))
	}
	if c.Runtime.Image == "" {
		errs = append(errs, fmt.Errorf("runtime.image is required"))
	}

	if c.Sandbox.Profile == "" {
		errs = append(errs, fmt.Errorf("sandbox.profile is required"))
	}
	if c.Sandbox.StateDir == "" {
		errs = append(errs, fmt.Errorf("sandbox.state_dir is required"))
	}

	if c.PDF.DPI <= 0 {
		errs = append(errs, fmt.Errorf("pdf.dpi must be positive"))
	}
	for name, v := range map[string]int{
		"pdf.max_pages":  c.PDF.MaxPages,
		"pdf.max_width":  c.PDF.MaxWidth,
		"pdf.max_height": c.PDF.MaxHeight,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	for name, v := range map[string]int{
		"timeouts.min_seconds":      c.Timeouts.MinSeconds,
		"timeouts.per_mib_seconds":  c.Timeouts.PerMiBSeconds,
		"timeouts.per_page_seconds": c.Timeouts.PerPageSeconds,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Sandbox.StateDir,
		c.Sandbox.BundleDir,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// BinaryPath resolves a helper binary. It looks in the state
// directory's bin subdirectory first, then falls back to exec.LookPath.
func (c *Config) BinaryPath(name string) (string, error) {
	binDir := filepath.Join(c.Sandbox.StateDir, "bin")
	binPath := filepath.Join(binDir, name)
	if _, err := os.Stat(binPath); err == nil {
		return binPath, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in %s or PATH", name, binDir)
	}
	return path, nil
}
