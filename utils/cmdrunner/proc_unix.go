//go:build !windows

package cmdrunner

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the child in its own process group so termination
// reaches the whole tree (npm spawns node, for example).
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := unix.Kill(-p.Pid, unix.SIGTERM); err != nil {
		return p.Signal(os.Interrupt)
	}
	return nil
}

func envKeyEqual(a, b string) bool {
	return a == b
}
