// Package procexec holds the process plumbing shared by the supervisors and
// the compose manager.
package procexec

import (
	"errors"
	"fmt"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	return Signal(pid, unix.SIGTERM)
}

// Signal delivers sig to pid and classifies the failure:
// a missing process is lib.KindNotRunning, a refused signal lib.KindPermissionDenied.
func Signal(pid int, sig unix.Signal) error {
	return classifyKillError(pid, unix.Kill(pid, sig))
}

func classifyKillError(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return lib.NewError(lib.KindNotRunning, "process does not exist", err)
	case errors.Is(err, unix.EPERM):
		return lib.NewError(lib.KindPermissionDenied, "permission denied", err)
	default:
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
}
