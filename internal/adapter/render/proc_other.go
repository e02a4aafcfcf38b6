//go:build !unix

package render

import "os/exec"

func killGroup(cmd *exec.Cmd) {}
