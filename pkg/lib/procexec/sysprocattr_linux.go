//go:build linux

package procexec

import (
	"syscall"
)

// SysProcAttr returns the process attributes used for every long-running child.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		// New process group so a terminal interrupt aimed at the dashboard
		// does not reach the children directly; they are stopped explicitly.
		Setpgid: true,
	}
}
