package privilege

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

func TestEnsureSkipsWhenNothingPrivilegedIsPending(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{}
	decision, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{Needed: false})
	require.NoError(t, err)
	require.Equal(t, Proceed, decision)
	require.Zero(t, elev.requests)
}

func TestEnsureProceedsWhenAlreadyElevated(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{elevated: true}
	decision, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{Needed: true})
	require.NoError(t, err)
	require.Equal(t, Proceed, decision)
	require.Zero(t, elev.requests)
}

func TestEnsureRelaunchesWithMarker(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{}
	decision, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{
		Needed: true,
		Args:   []string{"run", "--project", "/srv/app"},
	})
	require.NoError(t, err)
	require.Equal(t, HandedOff, decision)
	require.Equal(t, 1, elev.requests)
	require.Equal(t, []string{"run", "--project", "/srv/app", ElevatedFlag}, elev.args)
}

func TestEnsureRelaunchedWithoutRightsAborts(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{}
	_, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{
		Needed:     true,
		Relaunched: true,
	})
	require.ErrorIs(t, err, ErrStillUnprivileged)
	require.True(t, failure.Is(err, failure.KindManualActionRequired))
	require.NotEmpty(t, failure.RemediationOf(err))
	require.Zero(t, elev.requests, "never relaunches a second time")
}

func TestEnsureRelaunchedAndElevatedProceeds(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{elevated: true}
	decision, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{
		Needed:     true,
		Relaunched: true,
	})
	require.NoError(t, err)
	require.Equal(t, Proceed, decision)
	require.Zero(t, elev.requests)
}

func TestEnsureDeclinedElevationIsManualAction(t *testing.T) {
	t.Parallel()

	elev := &fakeElevator{err: ElevationDeclinedError{Err: errors.New("operation was cancelled")}}
	_, err := NewGate(WithElevator(elev)).Ensure(context.Background(), Request{Needed: true})
	require.Error(t, err)
	require.True(t, failure.Is(err, failure.KindManualActionRequired))
	require.NotEmpty(t, failure.RemediationOf(err))

	var declined ElevationDeclinedError
	require.ErrorAs(t, err, &declined)
}

func TestStripElevatedFlag(t *testing.T) {
	t.Parallel()

	args, found := StripElevatedFlag([]string{"run", ElevatedFlag, "--tui"})
	require.True(t, found)
	require.Equal(t, []string{"run", "--tui"}, args)

	_, found = StripElevatedFlag([]string{"run"})
	require.False(t, found)
}

type fakeElevator struct {
	elevated bool
	err      error
	requests int
	args     []string
}

func (f *fakeElevator) HasElevatedRights() bool {
	return f.elevated
}

func (f *fakeElevator) RequestElevationAndRestart(args []string) error {
	f.requests++
	f.args = args
	return f.err
}
