package privilege

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStillUnprivileged means the elevated relaunch came up without admin rights.
var ErrStillUnprivileged = errors.New("process relaunched for elevation still lacks administrative rights")

// SudoNotInstalledError indicates the sudo binary is missing on this machine.
type SudoNotInstalledError struct {
	Err error
}

func (e SudoNotInstalledError) Error() string {
	return fmt.Sprintf("sudo not installed: %v", e.Err)
}

func (e SudoNotInstalledError) Unwrap() error {
	return e.Err
}

// ElevationDeclinedError indicates the operator refused the elevation prompt.
type ElevationDeclinedError struct {
	Err error
}

func (e ElevationDeclinedError) Error() string {
	return fmt.Sprintf("elevation declined: %v", e.Err)
}

func (e ElevationDeclinedError) Unwrap() error {
	return e.Err
}

// ElevationUnknownError surfaces unclassified relaunch failures.
type ElevationUnknownError struct {
	Err    error
	Detail string
}

func (e ElevationUnknownError) Error() string {
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		return fmt.Sprintf("elevation failed: %v (%s)", e.Err, detail)
	}
	return fmt.Sprintf("elevation failed: %v", e.Err)
}

func (e ElevationUnknownError) Unwrap() error {
	return e.Err
}
