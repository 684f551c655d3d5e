//go:build windows

package toolchain

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
)

func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup uses taskkill /T to terminate the process tree.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	_ = exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
