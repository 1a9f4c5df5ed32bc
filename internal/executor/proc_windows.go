//go:build windows

package executor

import "os/exec"

func configureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

// killGroup is a no-op without process groups; the timeout still kills the
// script itself.
func killGroup(*exec.Cmd) error {
	return nil
}
