// Package privilege decides whether the provisioner must be relaunched with
// administrative rights and performs the relaunch.
package privilege

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// ElevatedFlag marks a relaunched process so the gate is never evaluated twice.
const ElevatedFlag = "--elevated"

// Elevator abstracts the platform specific elevation primitives.
type Elevator interface {
	HasElevatedRights() bool
	// RequestElevationAndRestart relaunches the current executable with args.
	// On unix it does not return on success.
	RequestElevationAndRestart(args []string) error
}

// System uses the real platform primitives.
type System struct{}

// HasElevatedRights implements Elevator.
func (System) HasElevatedRights() bool {
	return HasElevatedRights()
}

// RequestElevationAndRestart implements Elevator.
func (System) RequestElevationAndRestart(args []string) error {
	return RequestElevationAndRestart(args)
}

// Decision tells the caller what to do after the gate was evaluated.
type Decision int

const (
	// Proceed means the pipeline may run in this process.
	Proceed Decision = iota
	// HandedOff means an elevated copy took over and this process should exit 0.
	HandedOff
)

// Request describes one gate evaluation.
type Request struct {
	// Needed is true when at least one privileged step still has work to do.
	Needed bool
	// Relaunched is true when the process was started with ElevatedFlag.
	Relaunched bool
	// Args are the original command line arguments, without the program name.
	Args []string
}

// Gate evaluates elevation before the pipeline starts.
type Gate struct {
	elevator Elevator
}

// Option configures a Gate.
type Option func(*Gate)

// WithElevator injects a custom elevator (useful for tests).
func WithElevator(e Elevator) Option {
	return func(g *Gate) {
		if e != nil {
			g.elevator = e
		}
	}
}

// NewGate constructs a gate backed by the real platform.
func NewGate(opts ...Option) *Gate {
	g := &Gate{elevator: System{}}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Elevated reports whether the current process already holds admin rights.
func (g *Gate) Elevated() bool {
	return g.elevator.HasElevatedRights()
}

// Ensure relaunches the process elevated when needed. A declined or failed
// relaunch is returned as a ManualActionRequired failure.
func (g *Gate) Ensure(ctx context.Context, req Request) (Decision, error) {
	logger := zerolog.Ctx(ctx)
	if !req.Needed {
		logger.Debug().Msg("no privileged work pending")
		return Proceed, nil
	}
	if g.elevator.HasElevatedRights() {
		return Proceed, nil
	}
	if req.Relaunched {
		logger.Error().Msg("relaunched process is still not elevated")
		return Proceed, failure.New(failure.KindManualActionRequired, "elevate", ErrStillUnprivileged).
			WithRemediation(remediation)
	}

	args := slices.Clone(req.Args)
	if !slices.Contains(args, ElevatedFlag) {
		args = append(args, ElevatedFlag)
	}

	logger.Info().Msg("administrative rights required, relaunching elevated")
	if err := g.elevator.RequestElevationAndRestart(args); err != nil {
		return Proceed, failure.New(failure.KindManualActionRequired, "elevate", err).
			WithRemediation(remediation)
	}
	return HandedOff, nil
}

// StripElevatedFlag removes the relaunch marker from args.
func StripElevatedFlag(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	found := false
	for _, arg := range args {
		if arg == ElevatedFlag {
			found = true
			continue
		}
		out = append(out, arg)
	}
	return out, found
}
