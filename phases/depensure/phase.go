// Package depensure provides the phases that make sure a tool is installed,
// falling back through an install chain when the probe says it is missing.
package depensure

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/failure"
	"github.com/BrianJOC/app-provisioner/utils/installchain"
	"github.com/BrianJOC/app-provisioner/utils/probe"
)

const (
	RuntimePhaseID        = "runtime"
	DatabaseEnginePhaseID = "database_engine"
)

// ContextKeyVersion returns the context key holding a dependency's probed version.
func ContextKeyVersion(dependency string) string {
	return "deps:" + dependency + ":version"
}

// Prober reports dependency presence.
type Prober interface {
	Probe(ctx context.Context, dep probe.Dependency) probe.Status
}

// Installer runs an install fallback chain.
type Installer interface {
	Install(ctx context.Context) (installchain.Result, error)
}

var _ Installer = installchain.Chain{}

// Phase ensures one dependency is present.
type Phase struct {
	meta      phases.PhaseMetadata
	dep       probe.Dependency
	prober    Prober
	installer Installer
}

// New creates an ensure phase for dep.
func New(meta phases.PhaseMetadata, dep probe.Dependency, prober Prober, installer Installer) *Phase {
	return &Phase{meta: meta, dep: dep, prober: prober, installer: installer}
}

// NewRuntime ensures the JavaScript runtime and its package manager.
func NewRuntime(prober Prober, installer Installer) *Phase {
	return New(phases.PhaseMetadata{
		ID:                RuntimePhaseID,
		Title:             "Ensure Node.js runtime",
		Description:       "Install or verify node and npm.",
		Fatal:             true,
		RequiresElevation: true,
		Tags:              []string{"install"},
	}, probe.Node, prober, installer)
}

// NewDatabaseEngine ensures the PostgreSQL server and client tools.
func NewDatabaseEngine(prober Prober, installer Installer) *Phase {
	return New(phases.PhaseMetadata{
		ID:                DatabaseEnginePhaseID,
		Title:             "Ensure PostgreSQL",
		Description:       "Install or verify the PostgreSQL server and psql client.",
		Fatal:             true,
		RequiresElevation: true,
		Tags:              []string{"install", "database"},
	}, probe.Postgres, prober, installer)
}

// WithInstaller allows providing a custom installer (for tests).
func (p *Phase) WithInstaller(installer Installer) *Phase {
	if installer != nil {
		p.installer = installer
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return p.meta
}

func (p *Phase) Check(ctx context.Context, phaseCtx *phases.Context) (phases.Probe, error) {
	if p.prober == nil {
		return phases.Probe{}, phases.ValidationError{Reason: "prober is required"}
	}
	status := p.prober.Probe(ctx, p.dep)
	if !status.Present {
		return phases.Probe{Detail: "missing " + status.Missing}, nil
	}
	phaseCtx.Set(ContextKeyVersion(p.dep.Name), status.Version)
	return phases.Probe{Satisfied: true, Detail: status.Version}, nil
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	if p.installer == nil {
		return "", phases.ValidationError{Reason: "installer is required"}
	}

	res, err := p.installer.Install(ctx)
	if err != nil {
		return "", err
	}
	if res.Outcome == installchain.SucceededRequiresRestart {
		return "installed via " + res.Method,
			failure.New(failure.KindRestartRequired, "install "+p.dep.Name, errors.New("the installer changed the system PATH")).
				WithRemediation(fmt.Sprintf("%s was installed. Close this window, open a new terminal and run the provisioner again to continue.", p.dep.Name))
	}

	status := p.prober.Probe(ctx, p.dep)
	if !status.Present {
		return "", failure.New(failure.KindManualActionRequired, "verify "+p.dep.Name,
			fmt.Errorf("%s is still not runnable after installing via %s", status.Missing, res.Method)).
			WithRemediation("Open a new terminal so PATH changes apply, then run the provisioner again.")
	}
	phaseCtx.Set(ContextKeyVersion(p.dep.Name), status.Version)
	return fmt.Sprintf("%s installed via %s", status.Version, res.Method), nil
}
