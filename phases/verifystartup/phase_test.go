package verifystartup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/appcmd"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

func settings() Settings {
	return Settings{
		Dir:       "/srv/app",
		DevArgv:   []string{"npm", "run", "dev"},
		ProdArgv:  []string{"npm", "run", "start"},
		Port:      5000,
		Wait:      2 * time.Second,
		PollEvery: 5 * time.Millisecond,
	}
}

// listenAfter refuses the first n dials and accepts the rest.
func listenAfter(n int) DialFunc {
	calls := 0
	return func(context.Context, string) error {
		calls++
		if calls <= n {
			return errors.New("connection refused")
		}
		return nil
	}
}

func refuse(context.Context, string) error { return errors.New("connection refused") }

func TestRunSucceedsOnceListening(t *testing.T) {
	t.Parallel()

	r := &serverRunner{}
	detail, err := New(r, settings(), nil).WithDialer(listenAfter(2)).Run(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.Equal(t, "development mode listening on port 5000", detail)
	require.Equal(t, "npm run dev", r.command())
	require.True(t, r.stopped())
}

func TestRunUsesProductionAfterBuild(t *testing.T) {
	t.Parallel()

	r := &serverRunner{}
	phaseCtx := phases.NewContext()
	phaseCtx.Set(appcmd.ContextKeyBuilt, true)
	detail, err := New(r, settings(), nil).WithDialer(listenAfter(1)).Run(context.Background(), phaseCtx)
	require.NoError(t, err)
	require.Contains(t, detail, "production mode")
	require.Equal(t, "npm run start", r.command())
}

func TestRunSucceedsWhenProcessSurvivesWait(t *testing.T) {
	t.Parallel()

	s := settings()
	s.Wait = 30 * time.Millisecond
	r := &serverRunner{}
	detail, err := New(r, s, nil).WithDialer(refuse).Run(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.Contains(t, detail, "still running")
	require.True(t, r.stopped())
}

func TestRunFailsWhenProcessExits(t *testing.T) {
	t.Parallel()

	r := &serverRunner{exitErr: failure.New(failure.KindExecutionFailed, "npm run dev", errors.New("exit status 1")).WithStderr("ECONNREFUSED 127.0.0.1:5432")}
	_, err := New(r, settings(), nil).WithDialer(refuse).Run(context.Background(), phases.NewContext())
	require.Error(t, err)
	require.True(t, failure.Is(err, failure.KindExecutionFailed))
	require.Contains(t, failure.RemediationOf(err), "database settings")
}

func TestRunRejectsBusyPort(t *testing.T) {
	t.Parallel()

	r := &serverRunner{}
	_, err := New(r, settings(), nil).WithDialer(func(context.Context, string) error { return nil }).Run(context.Background(), phases.NewContext())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in use")
	require.Empty(t, r.command())
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := &serverRunner{onStart: cancel}
	_, err := New(r, settings(), nil).WithDialer(refuse).Run(ctx, phases.NewContext())
	require.True(t, failure.Is(err, failure.KindTerminated))
}

// serverRunner behaves like a long-running server: it blocks until its
// context is cancelled unless exitErr is set.
type serverRunner struct {
	mu      sync.Mutex
	cmd     string
	done    bool
	exitErr error
	onStart func()
}

func (s *serverRunner) Execute(ctx context.Context, req cmdrunner.Request) (cmdrunner.Result, error) {
	s.mu.Lock()
	s.cmd = strings.TrimSpace(req.Command + " " + strings.Join(req.Args, " "))
	s.mu.Unlock()
	if s.onStart != nil {
		s.onStart()
	}
	if s.exitErr != nil {
		return cmdrunner.Result{ExitCode: 1, Stderr: "boom"}, s.exitErr
	}
	<-ctx.Done()
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return cmdrunner.Result{Terminated: true}, failure.New(failure.KindTerminated, req.Command, ctx.Err())
}

func (s *serverRunner) command() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd
}

func (s *serverRunner) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
