//go:build !windows

package cmd

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the child in its own process group so it outlives
// the terminal session that started it.
func setSysProcAttr(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
