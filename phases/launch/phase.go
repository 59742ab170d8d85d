// Package launch provides the final phase: write start shortcuts and, when
// the operator agrees, run the application in the foreground.
package launch

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/appcmd"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
	"github.com/BrianJOC/app-provisioner/utils/launcher"
)

const (
	phaseID = "launch"
	// InputStart asks whether to start the application now.
	InputStart = "start"
)

// StartPolicy decides whether the operator is asked.
type StartPolicy string

const (
	StartAsk    StartPolicy = "ask"
	StartAlways StartPolicy = "always"
	StartNever  StartPolicy = "never"
)

// Settings describe the application start.
type Settings struct {
	Dir      string
	Title    string
	URL      string
	Port     int
	DevArgv  []string
	ProdArgv []string
	Policy   StartPolicy
	GOOS     string
}

// Phase writes shortcuts and optionally starts the application.
type Phase struct {
	runner   cmdrunner.Runner
	settings Settings
	output   cmdrunner.LineFunc
}

// New creates the launch phase.
func New(runner cmdrunner.Runner, settings Settings, output cmdrunner.LineFunc) *Phase {
	if settings.Policy == "" {
		settings.Policy = StartAsk
	}
	if settings.GOOS == "" {
		settings.GOOS = runtime.GOOS
	}
	if settings.Title == "" {
		settings.Title = "the application"
	}
	return &Phase{runner: runner, settings: settings, output: output}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		ID:          phaseID,
		Title:       "Launch application",
		Description: "Write start shortcuts and optionally start the application.",
		Deferred:    true,
		Inputs:      []phases.InputDefinition{startInput(p.settings.URL)},
		Tags:        []string{"launch"},
	}
}

func (p *Phase) Check(context.Context, *phases.Context) (phases.Probe, error) {
	return phases.Probe{}, nil
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	if len(p.settings.DevArgv) == 0 {
		return "", phases.ValidationError{Reason: "start command is required"}
	}
	built := appcmd.Built(phaseCtx)
	paths, err := launcher.Write(p.settings.Dir, p.settings.GOOS, p.shortcuts(built))
	if err != nil {
		return "", fmt.Errorf("failed to write start shortcuts: %w", err)
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, filepath.Base(path))
	}
	written := "wrote " + strings.Join(names, ", ")

	start, err := p.wantStart(phaseCtx)
	if err != nil {
		return written, err
	}
	if !start {
		return written, nil
	}

	spec := appcmd.Spec{Dir: p.settings.Dir, Argv: p.settings.DevArgv, Mode: "development", Output: p.output}
	if built && len(p.settings.ProdArgv) > 0 {
		spec.Argv, spec.Mode = p.settings.ProdArgv, "production"
	}
	_, err = appcmd.Execute(ctx, p.runner, phaseCtx, spec)
	switch {
	case ctx.Err() != nil && (err == nil || failure.Is(err, failure.KindTerminated)):
		return written + "; application stopped by operator", nil
	case err != nil:
		return written, err
	}
	return written + "; application exited", nil
}

func (p *Phase) wantStart(phaseCtx *phases.Context) (bool, error) {
	switch p.settings.Policy {
	case StartAlways:
		return true, nil
	case StartNever:
		return false, nil
	}
	val, ok := phases.GetInput(phaseCtx, phaseID, InputStart)
	if !ok {
		return false, phases.InputRequestError{PhaseID: phaseID, Input: startInput(p.settings.URL), Reason: "provisioning finished"}
	}
	return yes(val), nil
}

func (p *Phase) shortcuts(built bool) []launcher.Shortcut {
	port := strconv.Itoa(p.settings.Port)
	out := []launcher.Shortcut{{
		Name:       "start_app",
		Title:      p.settings.Title + " (development)",
		ProjectDir: p.settings.Dir,
		URL:        p.settings.URL,
		Env:        map[string]string{"MODE": "development", "PORT": port},
		Command:    p.settings.DevArgv[0],
		Args:       p.settings.DevArgv[1:],
	}}
	if built && len(p.settings.ProdArgv) > 0 {
		out = append(out, launcher.Shortcut{
			Name:       "start_app_production",
			Title:      p.settings.Title + " (production)",
			ProjectDir: p.settings.Dir,
			URL:        p.settings.URL,
			Env:        map[string]string{"MODE": "production", "PORT": port},
			Command:    p.settings.ProdArgv[0],
			Args:       p.settings.ProdArgv[1:],
		})
	}
	return out
}

func startInput(url string) phases.InputDefinition {
	return phases.ConfirmInput(InputStart, "Start the application now?",
		phases.WithDescription("The application will be served at "+url+". Press Ctrl+C to stop it."),
	)
}

func yes(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "y", "yes", "true":
			return true
		}
	}
	return false
}
