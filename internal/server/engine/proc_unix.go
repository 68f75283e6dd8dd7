//go:build unix

package engine

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the engine in its own group so the timeout also
// reaches anything it forked
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// Group kill refused, fall back to the direct child
	return cmd.Process.Kill()
}
