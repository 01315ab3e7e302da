//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts cmd in its own group so children such as the node
// process npm launches are stopped together with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
