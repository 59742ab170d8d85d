//go:build !windows

package privilege

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

const remediation = "Re-run the provisioner with sudo, or install the missing dependencies as root and run it again."

// HasElevatedRights reports whether the effective user is root.
func HasElevatedRights() bool {
	return unix.Geteuid() == 0
}

// RequestElevationAndRestart replaces the current process with
// `sudo <executable> args...`. It only returns on failure.
func RequestElevationAndRestart(args []string) error {
	sudo, err := exec.LookPath("sudo")
	if err != nil {
		return SudoNotInstalledError{Err: err}
	}
	self, err := os.Executable()
	if err != nil {
		return ElevationUnknownError{Err: err, Detail: "resolve executable"}
	}

	argv := append([]string{"sudo", "--preserve-env=PATH", self}, args...)
	if err := unix.Exec(sudo, argv, os.Environ()); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			return ElevationDeclinedError{Err: err}
		}
		return ElevationUnknownError{Err: err}
	}
	return nil
}
