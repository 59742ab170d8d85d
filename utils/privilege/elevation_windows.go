//go:build windows

package privilege

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

const remediation = "Right-click the terminal and choose \"Run as administrator\", then start the provisioner again."

// HasElevatedRights reports whether the process token is elevated.
func HasElevatedRights() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// RequestElevationAndRestart asks the shell to start a new elevated copy of the
// executable. The caller exits once this returns nil.
func RequestElevationAndRestart(args []string) error {
	self, err := os.Executable()
	if err != nil {
		return ElevationUnknownError{Err: err, Detail: "resolve executable"}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ElevationUnknownError{Err: err, Detail: "resolve working directory"}
	}

	escaped := make([]string, 0, len(args))
	for _, arg := range args {
		escaped = append(escaped, windows.EscapeArg(arg))
	}

	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return ElevationUnknownError{Err: err}
	}
	file, err := windows.UTF16PtrFromString(self)
	if err != nil {
		return ElevationUnknownError{Err: err}
	}
	params, err := windows.UTF16PtrFromString(strings.Join(escaped, " "))
	if err != nil {
		return ElevationUnknownError{Err: err}
	}
	dir, err := windows.UTF16PtrFromString(cwd)
	if err != nil {
		return ElevationUnknownError{Err: err}
	}

	if err := windows.ShellExecute(0, verb, file, params, dir, windows.SW_NORMAL); err != nil {
		if errors.Is(err, windows.ERROR_CANCELLED) {
			return ElevationDeclinedError{Err: err}
		}
		return ElevationUnknownError{Err: err}
	}
	return nil
}
