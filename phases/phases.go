package phases

import "context"

// Phase is one step of the provisioning pipeline. Check is the idempotency
// probe: when it reports Satisfied, Run is never called.
type Phase interface {
	Metadata() PhaseMetadata
	Check(ctx context.Context, phaseCtx *Context) (Probe, error)
	Run(ctx context.Context, phaseCtx *Context) (string, error)
}

// Probe is the result of a phase's idempotency check.
type Probe struct {
	Satisfied bool
	// Detail is shown next to the outcome, e.g. a probed version.
	Detail string
}

// PhaseMetadata contains descriptive information used by presentation layers (e.g., TUI).
type PhaseMetadata struct {
	ID          string
	Title       string
	Description string
	// Fatal phases abort the run when they fail.
	Fatal bool
	// RequiresElevation marks phases that need administrator rights to act.
	RequiresElevation bool
	// Deferred phases only run through Manager.Finish, after the report of
	// the main sequence has been shown.
	Deferred bool
	Inputs   []InputDefinition
	Tags     []string
}

// Observer receives lifecycle callbacks for each phase.
type Observer interface {
	PhaseStarted(meta PhaseMetadata)
	PhaseCompleted(meta PhaseMetadata, result RunResult)
}

// ObserverFunc adapts plain functions into an Observer.
type ObserverFunc struct {
	OnStart    func(meta PhaseMetadata)
	OnComplete func(meta PhaseMetadata, result RunResult)
}

// PhaseStarted implements Observer.
func (o ObserverFunc) PhaseStarted(meta PhaseMetadata) {
	if o.OnStart != nil {
		o.OnStart(meta)
	}
}

// PhaseCompleted implements Observer.
func (o ObserverFunc) PhaseCompleted(meta PhaseMetadata, result RunResult) {
	if o.OnComplete != nil {
		o.OnComplete(meta, result)
	}
}
