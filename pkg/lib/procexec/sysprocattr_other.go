//go:build !linux

package procexec

import (
	"syscall"
)

// SysProcAttr returns the process attributes used for every long-running child.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
