// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package isolation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/airlock/lib/clock"
)

// EnsureStop confirms a sandbox is gone, escalating as needed:
// Terminate then wait GraceTimeout; Kill then wait ForceTimeout; give
// up with ErrStopTimeout. An already-exited sandbox passes through
// without waiting. The driver calls this before reporting any
// terminal job state, success included: confirmed teardown is part
// of the job's contract.
func EnsureStop(ctx context.Context, handle Handle, c clock.Clock, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := handle.Terminate(); err != nil {
		// Expected for a sandbox that already exited; the wait
		// below resolves immediately in that case.
		logger.Debug("polite termination failed", "err", err)
	}
	if exitedWithin(ctx, handle, c, GraceTimeout) {
		return nil
	}

	logger.Warn("sandbox ignored termination, killing process group")
	if err := handle.Kill(); err != nil {
		logger.Debug("kill failed", "err", err)
	}
	if exitedWithin(ctx, handle, c, ForceTimeout) {
		return nil
	}

	return fmt.Errorf("%w (grace %v, force %v)", ErrStopTimeout, GraceTimeout, ForceTimeout)
}

// exitedWithin waits up to d for the sandbox to exit. Handle.Wait is
// idempotent, so probing it repeatedly is safe.
func exitedWithin(ctx context.Context, handle Handle, c clock.Clock, d time.Duration) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exited := make(chan struct{})
	go func() {
		// Wait returning at all means the sandbox has been reaped;
		// only a context expiry leaves its state unknown. A VM
		// handle whose transport dropped reports a session error
		// from Wait after the process itself is gone, and must not
		// send the ladder chasing a dead process.
		if _, err := handle.Wait(waitCtx); err == nil || waitCtx.Err() == nil {
			close(exited)
		}
	}()

	select {
	case <-exited:
		return true
	case <-c.After(d):
		return false
	case <-ctx.Done():
		return false
	}
}
