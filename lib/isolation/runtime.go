// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bureau-foundation/airlock/sandbox"
)

// RuntimeConfig configures the outer-container provider.
type RuntimeConfig struct {
	// Runtime is the container runtime binary ("podman" or
	// "docker"). Empty means autodetect: the
	// AIRLOCK_CONTAINER_RUNTIME environment variable first, then
	// podman, then docker.
	Runtime string

	// Image is the rasterizer container image reference.
	Image string

	// SeccompPath, when set, is passed to the runtime as a seccomp
	// profile for the outer container. Empty means the built-in
	// policy is written to a scratch directory and used; the stock
	// engine policy is never relied on.
	SeccompPath string

	// Profile names the inner sandbox profile. It reaches the
	// container entrypoint as AIRLOCK_PROFILE; empty keeps the
	// entrypoint's default.
	Profile string

	Logger *slog.Logger
}

// RuntimeProvider runs the rasterizer inside a rootless container
// with networking disabled and capabilities dropped. The image is
// expected to start gVisor internally, so the container is the outer
// layer of a two-layer sandbox.
type RuntimeProvider struct {
	runtime     string
	image       string
	seccompPath string
	profile     string
	logger      *slog.Logger

	// lookPath and runVersion are swappable for tests.
	lookPath   func(name string) (string, error)
	runVersion func(ctx context.Context, runtime string) (string, error)
}

func NewRuntimeProvider(cfg RuntimeConfig) *RuntimeProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeProvider{
		runtime:     cfg.Runtime,
		image:       cfg.Image,
		seccompPath: cfg.SeccompPath,
		profile:     cfg.Profile,
		logger:      logger,
		lookPath:    exec.LookPath,
		runVersion:  podmanClientVersion,
	}
}

func (p *RuntimeProvider) Name() string { return "container" }

// Available resolves which runtime binary will be used and verifies
// it exists on PATH. The resolved name is cached for Start.
func (p *RuntimeProvider) Available(ctx context.Context) error {
	runtime, err := p.resolveRuntime()
	if err != nil {
		return err
	}
	p.runtime = runtime
	return nil
}

func (p *RuntimeProvider) resolveRuntime() (string, error) {
	if p.runtime != "" {
		if _, err := p.lookPath(p.runtime); err != nil {
			return "", fmt.Errorf("container runtime %q not found: %w", p.runtime, err)
		}
		return p.runtime, nil
	}
	if env := os.Getenv("AIRLOCK_CONTAINER_RUNTIME"); env != "" {
		if _, err := p.lookPath(env); err != nil {
			return "", fmt.Errorf("AIRLOCK_CONTAINER_RUNTIME=%q not found: %w", env, err)
		}
		return env, nil
	}
	for _, candidate := range []string{"podman", "docker"} {
		if _, err := p.lookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no container runtime found (tried podman, docker)")
}

// Start launches the rasterizer container. Stdin/stdout of the
// returned handle are the container's stdin/stdout; pixel data flows
// through them framed by the pixel stream codec.
func (p *RuntimeProvider) Start(ctx context.Context, job Job) (Handle, error) {
	if p.runtime == "" {
		if err := p.Available(ctx); err != nil {
			return nil, err
		}
	}
	if err := p.ensureSeccompPolicy(); err != nil {
		return nil, err
	}

	args := []string{p.runtime, "run"}
	args = append(args, p.securityArgs(ctx)...)
	if job.Debug {
		args = append(args, "-e", "AIRLOCK_RASTERIZER_DEBUG=1")
	}
	if p.profile != "" {
		args = append(args, "-e", "AIRLOCK_PROFILE="+p.profile)
	}
	name := containerName(job.DocumentID)
	args = append(args, "--rm", "-i", "--name", name, p.image)

	p.logger.Debug("starting rasterizer container",
		"runtime", p.runtime, "name", name, "document", job.DocumentID)

	proc, err := startProc(ctx, args, nil)
	if err != nil {
		return nil, err
	}
	return &runtimeHandle{
		procHandle: proc,
		runtime:    p.runtime,
		name:       name,
		logger:     p.logger,
	}, nil
}

// ensureSeccompPolicy materialises the built-in syscall policy when no
// policy file was configured. Container engines take seccomp policies
// by path, so the document is written to a scratch directory once per
// provider and reused for every subsequent Start.
func (p *RuntimeProvider) ensureSeccompPolicy() error {
	if p.seccompPath != "" {
		return nil
	}
	dir, err := os.MkdirTemp("", "airlock-seccomp-")
	if err != nil {
		return fmt.Errorf("creating syscall policy directory: %w", err)
	}
	path, err := sandbox.WriteDefaultSeccompPolicy(dir)
	if err != nil {
		return err
	}
	p.seccompPath = path
	return nil
}

// securityArgs builds the hardening flags for the outer container.
// Rootless podman needs --userns nomap (4.1+) so the container user
// does not map to the invoking user; docker spells no-new-privileges
// differently. Both get all capabilities dropped except SYS_CHROOT,
// which gVisor needs to set up its root.
func (p *RuntimeProvider) securityArgs(ctx context.Context) []string {
	var args []string
	if isPodman(p.runtime) {
		args = append(args, "--log-driver", "none", "--security-opt", "no-new-privileges")
		if version, err := p.runVersion(ctx, p.runtime); err == nil && podmanSupportsUsernsNomap(version) {
			args = append(args, "--userns", "nomap")
		}
	} else {
		args = append(args, "--security-opt=no-new-privileges:true")
	}
	if p.seccompPath != "" {
		args = append(args, "--security-opt", "seccomp="+p.seccompPath)
	}
	args = append(args,
		"--cap-drop", "all",
		"--cap-add", "SYS_CHROOT",
		"--security-opt", "label=type:container_engine_t",
		"--network=none",
		"-u", "airlock",
	)
	return args
}

// Terminate asks the runtime to stop the container by name, which
// also tears down runtime-managed state the bare process signal
// would leave behind. The group SIGTERM is a fallback for the case
// where the runtime client itself is wedged.
func (h *runtimeHandle) Terminate() error {
	ctx, cancel := context.WithTimeout(context.Background(), TimeoutKill)
	defer cancel()
	cmd := exec.CommandContext(ctx, h.runtime, "kill", h.name)
	if err := cmd.Run(); err != nil {
		h.logger.Debug("runtime kill failed, signalling process group",
			"name", h.name, "error", err)
		return h.procHandle.Terminate()
	}
	return nil
}

type runtimeHandle struct {
	*procHandle
	runtime string
	name    string
	logger  *slog.Logger
}

func containerName(docID string) string {
	return "airlock-rasterizer-" + docID
}

func isPodman(runtime string) bool {
	base := runtime
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return base == "podman"
}

func podmanClientVersion(ctx context.Context, runtime string) (string, error) {
	out, err := exec.CommandContext(ctx, runtime, "version", "--format", "{{.Client.Version}}").Output()
	if err != nil {
		return "", fmt.Errorf("querying %s version: %w", runtime, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// podmanSupportsUsernsNomap reports whether the podman client is at
// least 4.1, the first release with --userns nomap.
func podmanSupportsUsernsNomap(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool {
		return r < '0' || r > '9'
	}))
	if err != nil {
		return false
	}
	return major > 4 || (major == 4 && minor >= 1)
}
