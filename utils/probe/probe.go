// Package probe answers "is this tool installed, and which version" by
// running its version command.
package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Dependency names a tool made of one or more binaries that must all be present.
type Dependency struct {
	Name     string
	Binaries []string
	// VersionArgs defaults to --version.
	VersionArgs []string
}

// Status is the probe outcome. Version is the first binary's version.
type Status struct {
	Dependency string
	Present    bool
	Version    string
	// Missing is the first binary that was absent or failed.
	Missing string
	Err     error
}

var (
	// Node is the JavaScript runtime together with its package manager.
	Node = Dependency{Name: "node", Binaries: []string{"node", "npm"}}
	// Postgres is the PostgreSQL client tooling.
	Postgres = Dependency{Name: "postgres", Binaries: []string{"psql"}}
)

// Prober runs version probes.
type Prober struct {
	runner cmdrunner.Runner
}

// New constructs a Prober.
func New(runner cmdrunner.Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe runs every binary's version command. Any absence or non-zero exit
// means the dependency is not present.
func (p *Prober) Probe(ctx context.Context, dep Dependency) Status {
	status := Status{Dependency: dep.Name}
	if len(dep.Binaries) == 0 {
		status.Err = errors.New("dependency declares no binaries")
		return status
	}
	args := dep.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}

	logger := zerolog.Ctx(ctx).With().Str("dependency", dep.Name).Logger()
	for i, bin := range dep.Binaries {
		res, err := p.runner.Execute(ctx, cmdrunner.Request{Command: bin, Args: args})
		if err != nil {
			status.Missing = bin
			if !failure.Is(err, failure.KindNotFound) {
				status.Err = err
			}
			logger.Debug().Str("binary", bin).Err(err).Msg("probe failed")
			return status
		}
		if res.ExitCode != 0 {
			status.Missing = bin
			logger.Debug().Str("binary", bin).Int("exit_code", res.ExitCode).Msg("probe exited non-zero")
			return status
		}
		if i == 0 {
			status.Version = firstLine(res.Stdout)
		}
	}

	status.Present = true
	logger.Debug().Str("version", status.Version).Msg("dependency present")
	return status
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
