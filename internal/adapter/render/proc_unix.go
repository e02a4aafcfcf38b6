//go:build unix

package render

import (
	"os/exec"
	"syscall"
)

// killGroup makes cancellation kill the whole process group, so children
// that inherited the output pipes (manim starts ffmpeg) do not keep them open.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
