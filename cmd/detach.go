package cmd

import (
	"fmt"
	"os"
	"os/exec"
)

// startDetached relaunches the current executable as `gro --root root dev` in its
// own process group and returns once it has started.
func startDetached(env Env, root string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	c := exec.Command(exe, "--root", root, "dev")
	c.Stdout = nil
	c.Stderr = nil
	c.Stdin = nil
	setSysProcAttr(c)
	if err := c.Start(); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	fmt.Fprintf(env.Stdout, "gro dev started in the background (pid %d)\n", c.Process.Pid)
	return c.Process.Release()
}
