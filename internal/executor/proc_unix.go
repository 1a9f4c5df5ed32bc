//go:build !windows

package executor

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcess starts the script in its own process group and kills the
// whole group on timeout, so children the script forked do not outlive it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := killGroup(cmd); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}

// killGroup sends SIGKILL to the script's process group. A group that is
// already empty is not an error.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
