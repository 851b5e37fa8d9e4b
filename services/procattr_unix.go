//go:build unix

package services

import (
	"os/exec"
	"syscall"
)

// killProcessGroup makes cancellation take down the engine together with any
// helper processes it forked.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
