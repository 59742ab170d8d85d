package installchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

func TestInstallFallsThroughInOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	chain := Chain{
		Dependency: "node",
		Methods: []Method{
			&fakeMethod{name: "pm", calls: &calls, err: errors.New("exit status 1")},
			&fakeMethod{name: "download", calls: &calls, outcome: Succeeded},
			&fakeMethod{name: "manual", calls: &calls, outcome: Succeeded},
		},
	}

	res, err := chain.Install(context.Background())
	require.NoError(t, err)
	require.Equal(t, Succeeded, res.Outcome)
	require.Equal(t, "download", res.Method)
	require.Equal(t, []string{"pm", "download"}, calls)
	require.Len(t, res.Attempts, 2)
	require.Error(t, res.Attempts[0].Err)
}

func TestInstallSkipsUnavailableMethodsWithoutRunningThem(t *testing.T) {
	t.Parallel()

	var calls []string
	chain := Chain{
		Dependency: "node",
		Methods: []Method{
			&fakeMethod{name: "pm", calls: &calls, unavailable: "no supported package manager found"},
			&fakeMethod{name: "download", calls: &calls, outcome: Succeeded},
		},
	}

	res, err := chain.Install(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"download"}, calls)
	require.True(t, res.Attempts[0].Skipped)
	require.True(t, failure.Is(res.Attempts[0].Err, failure.KindMethodUnavailable))
}

func TestInstallRequiresRestartIsDistinct(t *testing.T) {
	t.Parallel()

	chain := Chain{
		Dependency: "node",
		Methods:    []Method{&fakeMethod{name: "msi", outcome: SucceededRequiresRestart}},
	}

	res, err := chain.Install(context.Background())
	require.NoError(t, err)
	require.Equal(t, SucceededRequiresRestart, res.Outcome)
}

func TestInstallExhaustionAggregatesErrors(t *testing.T) {
	t.Parallel()

	pmErr := errors.New("winget exited 1")
	chain := Chain{
		Dependency: "postgres",
		Methods: []Method{
			&fakeMethod{name: "pm", err: pmErr},
			ManualInstruction{Dependency: "PostgreSQL", URL: "https://www.postgresql.org/download/"},
		},
	}

	res, err := chain.Install(context.Background())
	require.Error(t, err)
	require.Equal(t, Failed, res.Outcome)
	require.True(t, failure.Is(err, failure.KindManualActionRequired))
	require.ErrorIs(t, err, pmErr)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Attempts, 2)
	require.Contains(t, chainErr.Error(), "winget exited 1")
	require.Contains(t, failure.RemediationOf(err), "https://www.postgresql.org/download/")
}

func TestInstallStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []string
	chain := Chain{Dependency: "node", Methods: []Method{&fakeMethod{name: "pm", calls: &calls}}}
	_, err := chain.Install(ctx)
	require.True(t, failure.Is(err, failure.KindTerminated))
	require.Empty(t, calls)
}

type fakeMethod struct {
	name        string
	unavailable string
	outcome     Outcome
	err         error
	calls       *[]string
}

func (f *fakeMethod) Name() string     { return f.name }
func (f *fakeMethod) Kind() MethodKind { return KindPackageManager }

func (f *fakeMethod) Available(context.Context) (bool, string) {
	return f.unavailable == "", f.unavailable
}

func (f *fakeMethod) Install(context.Context) (Outcome, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	if f.err != nil {
		return Failed, f.err
	}
	return f.outcome, nil
}
