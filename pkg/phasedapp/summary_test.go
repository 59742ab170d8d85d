package phasedapp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/phases"
)

func TestOutcomeLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Skipped", OutcomeLabel(phases.Skipped))
	require.Equal(t, "Succeeded", OutcomeLabel(phases.Succeeded))
	require.Equal(t, "Failed (continued)", OutcomeLabel(phases.FailedContinue))
	require.Equal(t, "Failed", OutcomeLabel(phases.FailedFatal))
	require.Equal(t, "Not run", OutcomeLabel(phases.NotRun))
}

func TestRenderSummaryShowsRemediationForFailures(t *testing.T) {
	t.Parallel()

	report := &phases.Report{
		RunID: "run-1",
		Results: []phases.RunResult{
			{PhaseID: "runtime", Title: "Ensure Node.js runtime", Outcome: phases.Skipped, Detail: "v20.11.0"},
			{
				PhaseID:     "build",
				Title:       "Build application",
				Outcome:     phases.FailedContinue,
				Err:         errors.New("npm run build: execution_failed: exit status 2"),
				Remediation: "The application can still run in development mode.",
				Duration:    1500 * time.Millisecond,
			},
			{PhaseID: "verify_startup", Title: "Verify startup", Outcome: phases.Succeeded, Remediation: "unused"},
		},
	}

	text := RenderSummary(report, 0)
	require.Contains(t, text, "run-1")
	require.Contains(t, text, "v20.11.0")
	require.Contains(t, text, "exit status 2")
	require.Contains(t, text, "development mode")
	require.Contains(t, text, "1.5s")
	require.NotContains(t, text, "unused")
	require.Contains(t, text, "Completed with warnings")
}

func TestStatusLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Cancelled by operator", statusLine(&phases.Report{Cancelled: true, Aborted: true}))
	require.Contains(t, statusLine(&phases.Report{RestartRequired: true}), "new terminal")
	require.Equal(t, "Provisioning completed", statusLine(&phases.Report{}))
	require.Empty(t, RenderSummary(nil, 0))
}
