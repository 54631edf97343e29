// Package hook invokes the administrator-supplied mount/unmount helper
// program (spec.md §4.7).
package hook

import (
	"context"
	"os/exec"
	"time"
)

// Action is the fixed first argument passed to a hook invocation.
type Action string

const (
	Mount   Action = "mount"
	Unmount Action = "unmount"
)

// DefaultTimeout bounds how long a hook child may run before it is killed.
// spec.md §9 Design Notes flags the unbounded wait as an acknowledged
// limitation the re-implementation "may choose" to bound; SPEC_FULL.md
// decides to bound it (see SPEC_FULL.md "Hook timeout").
const DefaultTimeout = 10 * time.Second

// Runner executes a hook. Invoker is the real implementation; tests
// substitute a fake.
type Runner interface {
	Run(action Action, mountpoint string) error
}

// Invoker runs a helper program as the configured unprivileged user. A zero
// Path makes every invocation a no-op success, matching spec.md §4.7 ("when
// the configured helper path is absent, the invocation is a no-op success").
type Invoker struct {
	Path    string
	UID     int
	GID     int
	Timeout time.Duration
}

// Run invokes the helper with argv [Path, action, mountpoint], waits for it
// to exit, and treats a clean exit(0) as success. Any other outcome —
// nonzero exit, signal, or timeout — is the caller's to log; it is never
// fatal to the mount/unmount it accompanies (spec.md §4.7, §7).
func (inv Invoker) Run(action Action, mountpoint string) error {
	if inv.Path == "" {
		return nil
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, inv.Path, string(action), mountpoint)
	cmd.SysProcAttr = credential(inv.UID, inv.GID)
	return cmd.Run()
}
