//go:build windows

package cmd

import "os/exec"

// setSysProcAttr is a no-op on Windows (Setpgid not available)
func setSysProcAttr(*exec.Cmd) {}
