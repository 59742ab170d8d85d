// Package verifystartup provides the phase that starts the application
// briefly to prove it boots, then stops it.
package verifystartup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/appcmd"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

const phaseID = "verify_startup"

// DialFunc checks whether something accepts connections on addr.
type DialFunc func(ctx context.Context, addr string) error

// Settings describe how the application is started and observed.
type Settings struct {
	Dir       string
	DevArgv   []string
	ProdArgv  []string
	Port      int
	Wait      time.Duration
	PollEvery time.Duration
}

// Phase starts the application and waits until it listens or survives the
// wait window.
type Phase struct {
	runner   cmdrunner.Runner
	settings Settings
	output   cmdrunner.LineFunc
	dial     DialFunc
}

// New creates the startup verification phase.
func New(runner cmdrunner.Runner, settings Settings, output cmdrunner.LineFunc) *Phase {
	if settings.PollEvery <= 0 {
		settings.PollEvery = 500 * time.Millisecond
	}
	return &Phase{runner: runner, settings: settings, output: output, dial: dialTCP}
}

// WithDialer overrides the port probe (for tests).
func (p *Phase) WithDialer(fn DialFunc) *Phase {
	if fn != nil {
		p.dial = fn
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		ID:          phaseID,
		Title:       "Verify application startup",
		Description: "Start the application, wait for it to listen, then stop it.",
		Fatal:       true,
		Tags:        []string{"verify"},
	}
}

func (p *Phase) Check(context.Context, *phases.Context) (phases.Probe, error) {
	return phases.Probe{}, nil
}

type exit struct {
	res cmdrunner.Result
	err error
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	addr := net.JoinHostPort("localhost", strconv.Itoa(p.settings.Port))
	if err := p.dial(ctx, addr); err == nil {
		return "", failure.New(failure.KindExecutionFailed, "verify startup", fmt.Errorf("port %d is already in use", p.settings.Port)).
			WithRemediation(fmt.Sprintf("Stop the process listening on port %d (it may be an earlier instance of the application) or change app.port, then run the provisioner again.", p.settings.Port))
	}

	spec := appcmd.Spec{Dir: p.settings.Dir, Argv: p.settings.DevArgv, Mode: "development", Output: p.output}
	if appcmd.Built(phaseCtx) && len(p.settings.ProdArgv) > 0 {
		spec.Argv, spec.Mode = p.settings.ProdArgv, "production"
	}

	childCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan exit, 1)
	go func() {
		res, err := appcmd.Execute(childCtx, p.runner, phaseCtx, spec)
		done <- exit{res: res, err: err}
	}()

	deadline := time.NewTimer(p.settings.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.settings.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case e := <-done:
			return "", exitedEarly(spec, e)
		case <-ticker.C:
			if p.dial(ctx, addr) == nil {
				stop()
				<-done
				return fmt.Sprintf("%s mode listening on port %d", spec.Mode, p.settings.Port), nil
			}
		case <-deadline.C:
			stop()
			<-done
			return fmt.Sprintf("%s mode still running after %s", spec.Mode, p.settings.Wait), nil
		case <-ctx.Done():
			stop()
			<-done
			return "", failure.New(failure.KindTerminated, "verify startup", ctx.Err())
		}
	}
}

func exitedEarly(spec appcmd.Spec, e exit) error {
	err := e.err
	if err == nil {
		err = errors.New("application exited during startup")
	}
	if failure.KindOf(err) == failure.KindUnknown || failure.Is(err, failure.KindExecutionFailed) {
		fe := failure.New(failure.KindExecutionFailed, "verify startup", err).WithStderr(e.res.Stderr)
		return fe.WithRemediation(fmt.Sprintf("The application stopped right after starting in %s mode. Check the output above, "+
			"verify the database settings in the generated environment file and run the provisioner again.", spec.Mode))
	}
	return err
}

func dialTCP(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
