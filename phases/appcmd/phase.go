// Package appcmd runs the application's own commands (migrations, build) as
// pipeline phases.
package appcmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/envconfig"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

const (
	MigrationsPhaseID = "migrations"
	BuildPhaseID      = "build"
	// ContextKeyBuilt is set to true once the production build succeeded.
	ContextKeyBuilt = "build:succeeded"
)

// Spec describes one command invocation in the project directory.
type Spec struct {
	Dir  string
	Argv []string
	// Mode is exported to the child as MODE alongside the generated values.
	Mode   string
	Output cmdrunner.LineFunc
	// Remediation is attached to failures that carry none.
	Remediation string
}

// Execute runs spec with the generated environment as an overlay, which is
// cleared once the child exits.
func Execute(ctx context.Context, runner cmdrunner.Runner, phaseCtx *phases.Context, spec Spec) (cmdrunner.Result, error) {
	if runner == nil {
		return cmdrunner.Result{}, phases.ValidationError{Reason: "command runner is required"}
	}
	req := cmdrunner.Command(spec.Argv)
	req.Dir = spec.Dir
	req.Env = envconfig.Overlay(phaseCtx, spec.Mode)
	req.Stream = spec.Output
	req.Check = true
	defer cmdrunner.Clear(req.Env)

	res, err := runner.Execute(ctx, req)
	if err != nil && spec.Remediation != "" {
		var fe *failure.Error
		if errors.As(err, &fe) && fe.Remediation == "" {
			fe.Remediation = spec.Remediation
		}
	}
	return res, err
}

// Phase runs a single project command.
type Phase struct {
	meta      phases.PhaseMetadata
	runner    cmdrunner.Runner
	spec      Spec
	onSuccess func(*phases.Context)
}

// NewMigrations applies the database schema. Failure is not fatal: the
// application can still create its schema on first start.
func NewMigrations(runner cmdrunner.Runner, dir string, argv []string, output cmdrunner.LineFunc) *Phase {
	return &Phase{
		meta: phases.PhaseMetadata{
			ID:          MigrationsPhaseID,
			Title:       "Apply database schema",
			Description: "Run " + strings.Join(argv, " ") + " against the application database.",
			Tags:        []string{"database"},
		},
		runner: runner,
		spec: Spec{
			Dir:         dir,
			Argv:        argv,
			Mode:        "development",
			Output:      output,
			Remediation: "The schema could not be applied. The application may create it on first start; otherwise run " + strings.Join(argv, " ") + " manually after fixing the error above.",
		},
	}
}

// NewBuild produces the production bundle. Failure falls back to starting
// in development mode.
func NewBuild(runner cmdrunner.Runner, dir string, argv []string, output cmdrunner.LineFunc) *Phase {
	return &Phase{
		meta: phases.PhaseMetadata{
			ID:          BuildPhaseID,
			Title:       "Build application",
			Description: "Run " + strings.Join(argv, " ") + " to produce the production bundle.",
			Tags:        []string{"build"},
		},
		runner: runner,
		spec: Spec{
			Dir:         dir,
			Argv:        argv,
			Mode:        "production",
			Output:      output,
			Remediation: "The production build failed; the application will be started in development mode instead.",
		},
		onSuccess: func(c *phases.Context) { c.Set(ContextKeyBuilt, true) },
	}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return p.meta
}

// Check never reports satisfied; both commands are cheap to repeat and
// idempotent on the application side.
func (p *Phase) Check(context.Context, *phases.Context) (phases.Probe, error) {
	return phases.Probe{}, nil
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	res, err := Execute(ctx, p.runner, phaseCtx, p.spec)
	if err != nil {
		return "", err
	}
	if p.onSuccess != nil {
		p.onSuccess(phaseCtx)
	}
	return fmt.Sprintf("%s finished in %s", strings.Join(p.spec.Argv, " "), res.Duration.Round(time.Second)), nil
}

// Built reports whether the build phase succeeded in this run.
func Built(phaseCtx *phases.Context) bool {
	built, _ := phases.Value[bool](phaseCtx, ContextKeyBuilt)
	return built
}
