package pkginstaller

import (
	"fmt"
	"strings"
)

// RunnerError is returned by New when no command runner was supplied.
type RunnerError struct{}

func (RunnerError) Error() string {
	return "pkginstaller: a command runner is required"
}

// ValidationError reports a package map that cannot drive the detected manager.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "pkginstaller: invalid packages: " + e.Reason
}

// OptionError reports an invalid construction option.
type OptionError struct {
	Reason string
}

func (e OptionError) Error() string {
	return "pkginstaller: invalid option: " + e.Reason
}

// CommandError is a failed package manager invocation. Stderr holds the
// captured tail of its output.
type CommandError struct {
	Manager Manager
	Action  string
	Err     error
	Stderr  string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("%s %s failed: %v", e.Manager, e.Action, e.Err)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += " (" + tail + ")"
	}
	return msg
}

func (e CommandError) Unwrap() error {
	return e.Err
}
