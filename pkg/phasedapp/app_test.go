package phasedapp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	phasespkg "github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
)

func TestNewRequiresPhases(t *testing.T) {
	t.Parallel()

	_, err := New()
	require.ErrorIs(t, err, ErrNoPhases)
}

func TestAppRunExecutesPhasesAndReturnsReport(t *testing.T) {
	t.Parallel()

	observer := newRecordingObserver(2)
	app := newTestApp(t,
		WithPhases(newStubPhase("one"), newStubPhase("two")),
		WithManagerOptions(phasespkg.WithObserver(observer)),
	)

	resCh := runAppAsync(app, context.Background())
	observer.wait(t, time.Second)
	require.NoError(t, app.Stop())

	report := awaitReport(t, resCh)
	require.Equal(t, []string{"start:one", "complete:one:succeeded", "start:two", "complete:two:succeeded"}, observer.events())
	require.Len(t, report.Results, 2)
}

func TestAppRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	blocking := newStubPhaseFunc("block", func(ctx context.Context, _ *phasespkg.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "", nil
		}
	})
	app := newTestApp(t, WithPhases(blocking))

	resCh := runAppAsync(app, context.Background())
	time.Sleep(50 * time.Millisecond)

	_, err := app.Run(context.Background())
	require.ErrorIs(t, err, ErrProgramRunning)

	close(release)
	require.NoError(t, app.Stop())
	awaitReport(t, resCh)
}

func TestAppRunQuitsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	blocking := newStubPhaseFunc("block", func(ctx context.Context, _ *phasespkg.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	app := newTestApp(t, WithPhases(blocking))

	ctx, cancel := context.WithCancel(context.Background())
	resCh := runAppAsync(app, ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	report := awaitReport(t, resCh)
	require.True(t, report.Cancelled)
	require.Equal(t, 1, report.ExitCode())
}

func TestRunConsolePresentsSummaryBeforeDeferredPhases(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	relay := NewRelay()
	var order []string
	main := newStubPhaseFunc("main", func(context.Context, *phasespkg.Context) (string, error) {
		relay.Line(cmdrunner.Line{Stream: cmdrunner.Stdout, Text: "compiled 12 modules"})
		return "ok", nil
	})
	deferred := stubPhase{
		meta: phasespkg.PhaseMetadata{ID: "launch", Title: "Launch", Deferred: true},
		run: func(context.Context, *phasespkg.Context) (string, error) {
			order = append(order, "launch")
			if !strings.Contains(out.String(), "Provisioning summary") {
				return "", errors.New("summary was not shown first")
			}
			return "started", nil
		},
	}
	app, err := New(WithPhases(main, deferred), WithRelay(relay))
	require.NoError(t, err)

	report, err := app.RunConsole(context.Background(), NewConsole(strings.NewReader(""), &out))
	require.NoError(t, err)
	require.Equal(t, []string{"launch"}, order)

	res, ok := report.Result("launch")
	require.True(t, ok)
	require.Equal(t, phasespkg.Succeeded, res.Outcome)
	require.Contains(t, out.String(), "compiled 12 modules")

	relay.Line(cmdrunner.Line{Text: "after detach"})
	require.NotContains(t, out.String(), "after detach")
}

func TestRelayWithoutFrontend(t *testing.T) {
	t.Parallel()

	_, err := NewRelay().RequestInput(context.Background(), phasespkg.PhaseMetadata{}, phasespkg.InputDefinition{}, "")
	require.ErrorIs(t, err, ErrNoFrontend)
}

// --- helpers ---

type appResult struct {
	report *phasespkg.Report
	err    error
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	opts = append(opts, WithProgramOptions(
		tea.WithoutRenderer(),
		tea.WithInput(bytes.NewBuffer(nil)),
		tea.WithOutput(io.Discard),
	))
	app, err := New(opts...)
	require.NoError(t, err)
	return app
}

func runAppAsync(app *App, ctx context.Context) chan appResult {
	ch := make(chan appResult, 1)
	go func() {
		report, err := app.Run(ctx)
		ch <- appResult{report: report, err: err}
	}()
	return ch
}

func awaitReport(t *testing.T, ch <-chan appResult) *phasespkg.Report {
	t.Helper()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		require.NotNil(t, res.report)
		return res.report
	case <-time.After(2 * time.Second):
		t.Fatal("app did not exit")
	}
	return nil
}

type stubPhase struct {
	meta phasespkg.PhaseMetadata
	run  func(ctx context.Context, phaseCtx *phasespkg.Context) (string, error)
}

func newStubPhase(id string) phasespkg.Phase {
	return stubPhase{meta: phasespkg.PhaseMetadata{ID: id, Title: id}}
}

func newStubPhaseFunc(id string, fn func(context.Context, *phasespkg.Context) (string, error)) phasespkg.Phase {
	return stubPhase{meta: phasespkg.PhaseMetadata{ID: id, Title: id}, run: fn}
}

func (s stubPhase) Metadata() phasespkg.PhaseMetadata {
	return s.meta
}

func (s stubPhase) Check(context.Context, *phasespkg.Context) (phasespkg.Probe, error) {
	return phasespkg.Probe{}, nil
}

func (s stubPhase) Run(ctx context.Context, phaseCtx *phasespkg.Context) (string, error) {
	if s.run != nil {
		return s.run(ctx, phaseCtx)
	}
	return "", nil
}

type recordingObserver struct {
	target int

	mu        sync.Mutex
	eventLog  []string
	completed int
	done      chan struct{}
}

func newRecordingObserver(target int) *recordingObserver {
	return &recordingObserver{target: target, done: make(chan struct{})}
}

func (o *recordingObserver) PhaseStarted(meta phasespkg.PhaseMetadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.eventLog = append(o.eventLog, "start:"+meta.ID)
}

func (o *recordingObserver) PhaseCompleted(meta phasespkg.PhaseMetadata, result phasespkg.RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.eventLog = append(o.eventLog, "complete:"+meta.ID+":"+string(result.Outcome))
	o.completed++
	if o.completed >= o.target && o.done != nil {
		close(o.done)
		o.done = nil
	}
}

func (o *recordingObserver) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for events: %v", o.events())
	}
}

func (o *recordingObserver) events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.eventLog...)
}
