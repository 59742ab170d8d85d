package phases

import (
	"time"
)

// Outcome is the terminal state of one phase in a run.
type Outcome string

const (
	Skipped        Outcome = "skipped"
	Succeeded      Outcome = "succeeded"
	FailedContinue Outcome = "failed_continue"
	FailedFatal    Outcome = "failed_fatal"
	NotRun         Outcome = "not_run"
)

// Failed reports whether the outcome is one of the failure variants.
func (o Outcome) Failed() bool {
	return o == FailedContinue || o == FailedFatal
}

// RunResult records what happened to one phase.
type RunResult struct {
	PhaseID     string
	Title       string
	Outcome     Outcome
	Detail      string
	Err         error
	Remediation string
	StartedAt   time.Time
	Duration    time.Duration
}

// Report summarizes a provisioning run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []RunResult
	// Aborted is set when a fatal phase failed.
	Aborted bool
	// RestartRequired is set when a phase needs a fresh session before the
	// run can continue.
	RestartRequired bool
	Cancelled       bool
}

// Halted reports whether the main sequence stopped before its end.
func (r *Report) Halted() bool {
	return r.Aborted || r.RestartRequired || r.Cancelled
}

// ExitCode maps the report to a process exit status.
func (r *Report) ExitCode() int {
	if r.Aborted || r.Cancelled {
		return 1
	}
	return 0
}

// Result returns the recorded result for a phase.
func (r *Report) Result(id string) (RunResult, bool) {
	for _, res := range r.Results {
		if res.PhaseID == id {
			return res, true
		}
	}
	return RunResult{}, false
}

// Status is a one-word summary used for history and logs.
func (r *Report) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Aborted:
		return "aborted"
	case r.RestartRequired:
		return "restart_required"
	default:
		return "completed"
	}
}

func (r *Report) set(result RunResult) {
	for i := range r.Results {
		if r.Results[i].PhaseID == result.PhaseID {
			r.Results[i] = result
			return
		}
	}
	r.Results = append(r.Results, result)
}
