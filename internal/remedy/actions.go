package remedy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessKiller terminates a process by PID. Killing an already-dead process
// is a no-op success, keeping remediation idempotent.
type ProcessKiller interface {
	Kill(ctx context.Context, pid int32) error
}

// GopsutilKiller terminates processes through the gopsutil process table,
// trying graceful termination before a hard kill.
type GopsutilKiller struct{}

// Kill terminates pid. A PID that no longer exists is success.
func (GopsutilKiller) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Already gone.
		return nil
	}
	if err := p.TerminateWithContext(ctx); err == nil {
		return nil
	}
	if err := p.KillWithContext(ctx); err != nil {
		if running, rerr := p.IsRunningWithContext(ctx); rerr == nil && !running {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// FileLocker makes a file immutable so tampered configuration cannot be
// rewritten by the malware after reset.
type FileLocker interface {
	Lock(ctx context.Context, path string) error
}

// ChflagsLocker sets the user-immutable flag through chflags(1).
type ChflagsLocker struct{}

// Lock marks path immutable. A missing file is a no-op success.
func (ChflagsLocker) Lock(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	cmd := exec.CommandContext(ctx, "chflags", "uchg", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("chflags uchg %s: %v: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// removePaths deletes every named path. Absent paths succeed trivially.
func removePaths(paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// chmodPaths restores mode on every named path. Absent paths succeed trivially.
func chmodPaths(paths []string, mode os.FileMode) error {
	var errs []error
	for _, path := range paths {
		if err := os.Chmod(path, mode); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("chmod %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
