//go:build windows

package probe

import (
	"os"
	"os/exec"
)

func configure(cmd *exec.Cmd) {}

// Windows has no SIGTERM for console programs, so both steps kill.
func terminate(proc *os.Process) {
	_ = proc.Kill()
}

func kill(proc *os.Process) {
	_ = proc.Kill()
}
