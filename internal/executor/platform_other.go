//go:build !linux && !darwin

package executor

import (
	"errors"
	"os"
	"os/exec"
)

var errNoRlimit = errors.New("memory limits are not supported on this platform")

func setupProcessGroup(cmd *exec.Cmd) {}

// terminateGroup kills the worker outright: there is no graceful signal.
func terminateGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func limitMemory(int64) error {
	return errNoRlimit
}
