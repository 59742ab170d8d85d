package dbprovision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/utils/dbclient"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

var creds = dbclient.Credentials{Host: "localhost", Port: 5432, User: "postgres", Password: "wrong", Database: "LMF"}

func authErr() error {
	return failure.New(failure.KindAuthenticationFailed, "ping", errors.New("exit status 2"))
}

func TestEnsureCreatesMissingDatabase(t *testing.T) {
	t.Parallel()

	db := &fakeDB{exists: false}
	p := New(db, WithReadyWait(0, 0))
	res, err := p.Ensure(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, Created, res.Outcome)
	require.Equal(t, []string{"LMF"}, db.created)
	require.Equal(t, StateDatabaseEnsured, p.State())
}

func TestEnsureExistingDatabaseIsNoop(t *testing.T) {
	t.Parallel()

	db := &fakeDB{exists: true}
	p := New(db, WithReadyWait(0, 0))
	res, err := p.Ensure(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, AlreadyExisted, res.Outcome)
	require.Empty(t, db.created)
	require.False(t, res.Reprompted)
	require.True(t, p.Trace().Exists)
	require.Equal(t, StateDatabaseEnsured, p.State())
}

func TestEnsureRepromptsExactlyOnceThenSucceeds(t *testing.T) {
	t.Parallel()

	db := &fakeDB{pingErrs: []error{authErr(), nil}}
	prompts := 0
	p := New(db, WithReadyWait(0, 0), WithPrompter(func(_ context.Context, c dbclient.Credentials, cause error) (string, error) {
		prompts++
		require.True(t, failure.Is(cause, failure.KindAuthenticationFailed))
		require.Equal(t, "postgres", c.User)
		return "right", nil
	}))

	res, err := p.Ensure(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, 1, prompts)
	require.True(t, res.Reprompted)
	require.Equal(t, "right", res.Credentials.Password)
	require.Equal(t, []string{"wrong", "right"}, db.pingPasswords)
	require.Equal(t, 1, p.Trace().Prompts)
}

func TestEnsureSecondAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	db := &fakeDB{pingErrs: []error{authErr(), authErr(), nil}}
	prompts := 0
	p := New(db, WithReadyWait(0, 0), WithPrompter(func(context.Context, dbclient.Credentials, error) (string, error) {
		prompts++
		return "still-wrong", nil
	}))

	_, err := p.Ensure(context.Background(), creds)
	require.Error(t, err)
	require.True(t, failure.Is(err, failure.KindAuthenticationFailed))
	require.Equal(t, 1, prompts)
	require.Len(t, db.pingPasswords, 2)
	require.Equal(t, StateFailed, p.State())
	require.Equal(t, 1, p.Trace().Prompts)
	require.ErrorContains(t, err, "after corrected password")
	require.Equal(t, err, p.Trace().Failure)
}

func TestEnsureWithoutPrompterFailsOnFirstRejection(t *testing.T) {
	t.Parallel()

	db := &fakeDB{pingErrs: []error{authErr()}}
	p := New(db, WithReadyWait(0, 0))

	_, err := p.Ensure(context.Background(), creds)
	require.True(t, failure.Is(err, failure.KindAuthenticationFailed))
	require.NotContains(t, err.Error(), "after corrected password")
	require.Zero(t, p.Trace().Prompts)
	require.Equal(t, StateFailed, p.State())
}

func TestEnsureConnectivityFailureIsNeverRetried(t *testing.T) {
	t.Parallel()

	connErr := failure.New(failure.KindConnectivityFailed, "ping", errors.New("exit status 2"))
	db := &fakeDB{pingErrs: []error{connErr}}
	prompted := false
	p := New(db, WithReadyWait(0, 0), WithPrompter(func(context.Context, dbclient.Credentials, error) (string, error) {
		prompted = true
		return "", nil
	}))

	_, err := p.Ensure(context.Background(), creds)
	require.True(t, failure.Is(err, failure.KindConnectivityFailed))
	require.False(t, prompted)
	require.Len(t, db.pingPasswords, 1)
}

func TestEnsureWaitsForReadiness(t *testing.T) {
	t.Parallel()

	db := &fakeDB{readyErr: failure.New(failure.KindConnectivityFailed, "pg_isready", errors.New("not ready"))}
	p := New(db, WithReadyWait(time.Second, time.Millisecond))

	_, err := p.Ensure(context.Background(), creds)
	require.True(t, failure.Is(err, failure.KindConnectivityFailed))
	require.Empty(t, db.pingPasswords)
	require.Equal(t, time.Second, db.readyTimeout)
}

func TestEnsurePromptErrorStopsRun(t *testing.T) {
	t.Parallel()

	cancelled := errors.New("prompt cancelled")
	db := &fakeDB{pingErrs: []error{authErr()}}
	p := New(db, WithReadyWait(0, 0), WithPrompter(func(context.Context, dbclient.Credentials, error) (string, error) {
		return "", cancelled
	}))

	_, err := p.Ensure(context.Background(), creds)
	require.ErrorIs(t, err, cancelled)
}

type fakeDB struct {
	readyErr      error
	readyTimeout  time.Duration
	pingErrs      []error
	pingPasswords []string
	exists        bool
	created       []string
}

func (f *fakeDB) WaitReady(_ context.Context, _ dbclient.Credentials, timeout, _ time.Duration) error {
	f.readyTimeout = timeout
	return f.readyErr
}

func (f *fakeDB) Ping(_ context.Context, c dbclient.Credentials) error {
	f.pingPasswords = append(f.pingPasswords, c.Password)
	if len(f.pingErrs) == 0 {
		return nil
	}
	err := f.pingErrs[0]
	f.pingErrs = f.pingErrs[1:]
	return err
}

func (f *fakeDB) DatabaseExists(context.Context, dbclient.Credentials, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeDB) CreateDatabase(_ context.Context, _ dbclient.Credentials, name string) error {
	f.created = append(f.created, name)
	return nil
}
