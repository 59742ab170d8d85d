// Package appdeps provides the phase that installs the application's
// package dependencies.
package appdeps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/appcmd"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

const (
	phaseID      = "app_dependencies"
	manifestFile = "package.json"
	lockFile     = "package-lock.json"
	modulesDir   = "node_modules"
)

const buildToolsHint = "Dependency installation failed. If a native module failed to compile, install the C++ build tools " +
	"(Visual Studio Build Tools on Windows, build-essential on Linux, Xcode Command Line Tools on macOS) and run the provisioner again."

// Commands are the argv lists the phase may run.
type Commands struct {
	// InstallClean is used when a lockfile exists.
	InstallClean []string
	Install      []string
	// List exits zero when the installed tree satisfies the manifest.
	List []string
}

// Phase installs project dependencies.
type Phase struct {
	runner   cmdrunner.Runner
	dir      string
	commands Commands
	output   cmdrunner.LineFunc
}

// New creates the dependency phase for the project in dir.
func New(runner cmdrunner.Runner, dir string, commands Commands, output cmdrunner.LineFunc) *Phase {
	return &Phase{runner: runner, dir: dir, commands: commands, output: output}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		ID:          phaseID,
		Title:       "Install application dependencies",
		Description: "Install the packages listed in " + manifestFile + ".",
		Fatal:       true,
		Tags:        []string{"build"},
	}
}

// Check fails when the project has no manifest and is satisfied when the
// installed tree already matches it.
func (p *Phase) Check(ctx context.Context, _ *phases.Context) (phases.Probe, error) {
	manifest := filepath.Join(p.dir, manifestFile)
	if _, err := os.Stat(manifest); err != nil {
		return phases.Probe{}, failure.New(failure.KindManualActionRequired, "locate "+manifestFile, err).
			WithRemediation(fmt.Sprintf("No %s found in %s. Run the provisioner from the application directory or pass --project (-p).", manifestFile, p.dir))
	}
	if _, err := os.Stat(filepath.Join(p.dir, modulesDir)); err != nil {
		return phases.Probe{Detail: modulesDir + " missing"}, nil
	}
	if len(p.commands.List) == 0 || p.runner == nil {
		return phases.Probe{}, nil
	}

	req := cmdrunner.Command(p.commands.List)
	req.Dir = p.dir
	res, err := p.runner.Execute(ctx, req)
	if err != nil || res.ExitCode != 0 {
		return phases.Probe{Detail: "installed packages do not match " + manifestFile}, nil
	}
	return phases.Probe{Satisfied: true, Detail: "dependencies up to date"}, nil
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	argv := p.commands.Install
	if _, err := os.Stat(filepath.Join(p.dir, lockFile)); err == nil && len(p.commands.InstallClean) > 0 {
		argv = p.commands.InstallClean
	}
	if len(argv) == 0 {
		return "", phases.ValidationError{Reason: "no install command configured"}
	}

	_, err := appcmd.Execute(ctx, p.runner, phaseCtx, appcmd.Spec{
		Dir:         p.dir,
		Argv:        argv,
		Mode:        "development",
		Output:      p.output,
		Remediation: buildToolsHint,
	})
	if err != nil {
		var valErr phases.ValidationError
		if errors.As(err, &valErr) {
			return "", err
		}
		return "", fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return "installed with " + strings.Join(argv, " "), nil
}
