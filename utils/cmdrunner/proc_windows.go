//go:build windows

package cmdrunner

import (
	"os"
	"os/exec"
	"strings"
)

func configureProcess(*exec.Cmd) {}

// Windows has no SIGTERM; console children are killed directly.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func envKeyEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
