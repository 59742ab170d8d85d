package phases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Manager coordinates the ordered execution of phases.
type Manager struct {
	phases       []Phase
	observers    []Observer
	inputHandler InputHandler
	inputRetries int
	now          func() time.Time
	newID        func() string
}

// ManagerOption mutates manager configuration.
type ManagerOption func(*Manager)

// WithObserver registers an observer to receive lifecycle events.
func WithObserver(obs Observer) ManagerOption {
	return func(m *Manager) {
		if obs == nil {
			return
		}
		m.observers = append(m.observers, obs)
	}
}

// WithInputHandler registers a handler to satisfy input requests.
func WithInputHandler(handler InputHandler) ManagerOption {
	return func(m *Manager) {
		if handler == nil {
			return
		}
		m.inputHandler = handler
	}
}

// WithInputRetries bounds how many input requests a single phase may raise
// before it fails. The default is 1.
func WithInputRetries(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.inputRetries = n
		}
	}
}

// WithClock overrides time.Now for reports.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager constructs an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		inputRetries: 1,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

// Register appends phases, returning an error on duplicate IDs.
func (m *Manager) Register(phases ...Phase) error {
	for _, p := range phases {
		if p == nil {
			continue
		}
		meta := p.Metadata()
		if meta.ID == "" {
			return ValidationError{Reason: "phase id must not be empty"}
		}
		if m.hasPhase(meta.ID) {
			return DuplicatePhaseError{ID: meta.ID}
		}
		m.phases = append(m.phases, p)
	}
	return nil
}

// Phases returns the metadata of every registered phase in order.
func (m *Manager) Phases() []PhaseMetadata {
	out := make([]PhaseMetadata, 0, len(m.phases))
	for _, p := range m.phases {
		out = append(out, p.Metadata())
	}
	return out
}

// PendingElevation probes every phase that requires elevation and returns
// the ones that would still have to act.
func (m *Manager) PendingElevation(ctx context.Context, phaseCtx *Context) []PhaseMetadata {
	var pending []PhaseMetadata
	for _, p := range m.phases {
		meta := p.Metadata()
		if !meta.RequiresElevation {
			continue
		}
		status, err := p.Check(ctx, phaseCtx)
		if err != nil || !status.Satisfied {
			pending = append(pending, meta)
		}
	}
	return pending
}

// Run executes every non-deferred phase in registration order and returns
// the report. Phase errors never escape; they are recorded as results.
func (m *Manager) Run(ctx context.Context, phaseCtx *Context) *Report {
	if phaseCtx == nil {
		phaseCtx = NewContext()
	}
	report := &Report{RunID: m.newID(), StartedAt: m.now()}
	logger := zerolog.Ctx(ctx).With().Str("run_id", report.RunID).Logger()

	for _, phase := range m.phases {
		meta := phase.Metadata()
		if report.Halted() || ctx.Err() != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
			}
			report.set(notRun(meta))
			continue
		}
		if meta.Deferred {
			continue
		}
		m.step(ctx, phaseCtx, phase, meta, report)
	}

	report.FinishedAt = m.now()
	logger.Info().Str("status", report.Status()).Dur("duration", report.FinishedAt.Sub(report.StartedAt)).Msg("provisioning sequence finished")
	return report
}

// Finish runs the deferred phases once the caller has presented the report
// of the main sequence. A halted report marks them not run.
func (m *Manager) Finish(ctx context.Context, phaseCtx *Context, report *Report) {
	if report == nil {
		return
	}
	if phaseCtx == nil {
		phaseCtx = NewContext()
	}
	for _, phase := range m.phases {
		meta := phase.Metadata()
		if !meta.Deferred {
			continue
		}
		if report.Halted() || ctx.Err() != nil {
			report.set(notRun(meta))
			continue
		}
		m.step(ctx, phaseCtx, phase, meta, report)
	}
	report.FinishedAt = m.now()
}

func (m *Manager) step(ctx context.Context, phaseCtx *Context, phase Phase, meta PhaseMetadata, report *Report) {
	logger := zerolog.Ctx(ctx).With().Str("step", meta.ID).Logger()
	m.notifyStart(meta)

	result := RunResult{PhaseID: meta.ID, Title: meta.Title, StartedAt: m.now()}
	probe, err := phase.Check(ctx, phaseCtx)
	switch {
	case err != nil:
		logger.Debug().Err(err).Msg("check failed")
	case probe.Satisfied:
		result.Outcome = Skipped
		result.Detail = probe.Detail
		logger.Info().Str("detail", probe.Detail).Msg("already satisfied, skipping")
	default:
		result.Detail, err = m.executePhase(ctx, phaseCtx, phase, meta)
	}
	ClearInputs(phaseCtx, meta.ID)
	result.Duration = m.now().Sub(result.StartedAt)

	var satisfied SatisfiedError
	if errors.As(err, &satisfied) {
		err = nil
		result.Outcome = Skipped
		result.Detail = satisfied.Detail
		logger.Info().Str("detail", satisfied.Detail).Msg("nothing to do, skipping")
	}
	if err == nil && result.Outcome == "" {
		result.Outcome = Succeeded
		logger.Info().Dur("duration", result.Duration).Msg("step succeeded")
	}
	if err != nil {
		m.classify(ctx, meta, err, &result, report)
		event := logger.Warn()
		if result.Outcome == FailedFatal {
			event = logger.Error()
		}
		event.Err(err).Str("outcome", string(result.Outcome)).Msg("step did not succeed")
	}

	report.set(result)
	m.notifyComplete(meta, result)
}

func (m *Manager) classify(ctx context.Context, meta PhaseMetadata, err error, result *RunResult, report *Report) {
	kind := failure.KindOf(err)
	result.Remediation = failure.RemediationOf(err)

	switch {
	case kind == failure.KindRestartRequired:
		// The phase did its work; the rest needs a new session.
		result.Outcome = Succeeded
		report.RestartRequired = true
		if result.Remediation == "" {
			result.Remediation = defaultRemediation(kind)
		}
		return
	case ctx.Err() != nil || kind == failure.KindTerminated:
		result.Outcome = FailedFatal
		result.Err = PhaseExecutionError{Phase: meta, Err: err}
		report.Cancelled = true
		return
	}

	result.Err = PhaseExecutionError{Phase: meta, Err: err}
	if result.Remediation == "" {
		result.Remediation = defaultRemediation(kind)
	}
	if meta.Fatal {
		result.Outcome = FailedFatal
		report.Aborted = true
		return
	}
	result.Outcome = FailedContinue
}

func (m *Manager) executePhase(ctx context.Context, phaseCtx *Context, phase Phase, meta PhaseMetadata) (string, error) {
	requests := 0
	for {
		detail, err := phase.Run(ctx, phaseCtx)
		if err == nil {
			return detail, nil
		}
		var inputErr InputRequestError
		if !errors.As(err, &inputErr) || m.inputHandler == nil {
			return detail, err
		}
		if requests >= m.inputRetries {
			return detail, InputLimitError{PhaseID: meta.ID, InputID: inputErr.Input.ID, Limit: m.inputRetries}
		}
		requests++
		value, handlerErr := m.inputHandler.RequestInput(ctx, meta, inputErr.Input, inputErr.Reason)
		if handlerErr != nil {
			return detail, handlerErr
		}
		phaseID := inputErr.PhaseID
		if phaseID == "" {
			phaseID = meta.ID
		}
		SetInput(phaseCtx, phaseID, inputErr.Input.ID, value)
	}
}

func (m *Manager) hasPhase(id string) bool {
	for _, p := range m.phases {
		if p.Metadata().ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) notifyStart(meta PhaseMetadata) {
	for _, obs := range m.observers {
		obs.PhaseStarted(meta)
	}
}

func (m *Manager) notifyComplete(meta PhaseMetadata, result RunResult) {
	for _, obs := range m.observers {
		obs.PhaseCompleted(meta, result)
	}
}

func notRun(meta PhaseMetadata) RunResult {
	return RunResult{PhaseID: meta.ID, Title: meta.Title, Outcome: NotRun}
}

func defaultRemediation(kind failure.Kind) string {
	switch kind {
	case failure.KindNotFound:
		return "Install the missing tool, make sure it is on PATH and run the provisioner again."
	case failure.KindRestartRequired:
		return "Close this terminal, open a new one and run the provisioner again to continue."
	case failure.KindAuthenticationFailed:
		return "Check the database user and password and run the provisioner again."
	case failure.KindConnectivityFailed:
		return "Make sure the database service is running and reachable, then run the provisioner again."
	default:
		return "Review the output above, fix the reported problem and run the provisioner again."
	}
}
