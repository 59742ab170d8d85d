package phasedapp

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
)

func newTestModel(t *testing.T) (*model, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	metas := []phases.PhaseMetadata{
		{ID: "database", Title: "Ensure application database"},
		{ID: "build", Title: "Build application"},
	}
	return newModel(ctx, cancel, newEventBus(), metas), ctx
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelSecretPromptRespondsAndRedacts(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	m.Update(phaseStartedMsg{meta: phases.PhaseMetadata{ID: "database", Title: "Ensure application database"}})
	m.Update(inputRequestMsg{
		meta:   phases.PhaseMetadata{ID: "database"},
		input:  phases.SecretInput("password", "PostgreSQL password", phases.Required()),
		reason: "authentication failed",
	})
	require.NotNil(t, m.active)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.active, "required input keeps the prompt open")
	require.Equal(t, "Input required", m.statusMsg)

	m.Update(keys("hunter2"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, m.active)

	resp := <-m.bus.responses
	require.NoError(t, resp.err)
	require.Equal(t, "hunter2", resp.value)

	m.Update(lineMsg{line: cmdrunner.Line{Text: "connecting with hunter2"}})
	logs := m.states["database"].logs
	require.Contains(t, logs[len(logs)-1], "[secret]")
	require.NotContains(t, logs[len(logs)-1], "hunter2")
}

func TestModelConfirmPrompt(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	m.Update(inputRequestMsg{input: phases.ConfirmInput("start", "Start now?")})
	m.Update(keys("n"))

	resp := <-m.bus.responses
	require.Equal(t, false, resp.value)

	m.Update(inputRequestMsg{input: phases.ConfirmInput("start", "Start now?")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	resp = <-m.bus.responses
	require.Equal(t, true, resp.value)
}

func TestModelCopiesSelectedRemediation(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	var copied string
	m.copy = func(s string) error {
		copied = s
		return nil
	}
	m.Update(phaseCompletedMsg{
		meta:   phases.PhaseMetadata{ID: "build"},
		result: phases.RunResult{PhaseID: "build", Outcome: phases.FailedContinue, Remediation: "Fix the build errors."},
	})

	m.Update(keys("c"))
	require.Equal(t, "No remediation to copy", m.statusMsg)

	m.Update(keys("j"))
	m.Update(keys("c"))
	require.Equal(t, "Fix the build errors.", copied)
}

func TestModelCtrlCCancelsRunAndPrompt(t *testing.T) {
	t.Parallel()

	m, ctx := newTestModel(t)
	m.Update(inputRequestMsg{input: phases.ConfirmInput("start", "Start now?")})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Nil(t, cmd)
	require.Error(t, ctx.Err())
	require.Nil(t, m.active)

	resp := <-m.bus.responses
	require.ErrorIs(t, resp.err, context.Canceled)

	_, cmd = m.Update(finishedMsg{report: &phases.Report{Cancelled: true}})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestModelWaitsForQuitAfterFinish(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	_, cmd := m.Update(finishedMsg{report: &phases.Report{}})
	require.Nil(t, cmd)
	require.Contains(t, m.statusMsg, "press q")
	require.Contains(t, m.View(), "Provisioning summary")

	_, cmd = m.Update(keys("q"))
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}
