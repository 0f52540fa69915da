//go:build !windows

package probe

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configure puts the probe into its own process group so wrappers and their
// children are signalled together.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(proc *os.Process) {
	if err := unix.Kill(-proc.Pid, unix.SIGTERM); err != nil {
		_ = proc.Signal(unix.SIGTERM)
	}
}

func kill(proc *os.Process) {
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err != nil {
		_ = proc.Kill()
	}
}
