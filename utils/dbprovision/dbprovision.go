// Package dbprovision authenticates against PostgreSQL and makes sure the
// application database exists. Authentication failures get exactly one
// corrected-password retry.
package dbprovision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/dbclient"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Provisioner states.
const (
	StateUnauthenticated = "unauthenticated"
	StateReprompting     = "reprompting"
	StateAuthenticated   = "authenticated"
	StateDatabaseChecked = "database_checked"
	StateDatabaseEnsured = "database_ensured"
	StateFailed          = "failed"
)

// Provisioner events.
const (
	EventAuthenticated = "AUTHENTICATED"
	EventAuthRejected  = "AUTH_REJECTED"
	EventChecked       = "CHECKED"
	EventEnsured       = "ENSURED"
	EventFail          = "FAIL"
)

// Outcome tells whether the database had to be created.
type Outcome string

const (
	Created        Outcome = "created"
	AlreadyExisted Outcome = "already_existed"
)

// Database is the subset of dbclient.Client the provisioner drives.
type Database interface {
	WaitReady(ctx context.Context, creds dbclient.Credentials, timeout, interval time.Duration) error
	Ping(ctx context.Context, creds dbclient.Credentials) error
	DatabaseExists(ctx context.Context, creds dbclient.Credentials, name string) (bool, error)
	CreateDatabase(ctx context.Context, creds dbclient.Credentials, name string) error
}

var _ Database = (*dbclient.Client)(nil)

// Prompter asks the operator for a corrected password after cause.
type Prompter func(ctx context.Context, creds dbclient.Credentials, cause error) (string, error)

// Result reports what Ensure did. Credentials carry the corrected password
// when a retry happened.
type Result struct {
	Outcome     Outcome
	Credentials dbclient.Credentials
	Reprompted  bool
}

// Trace is the state machine context. Actions fill it in as the machine
// moves: Prompts counts entries into the re-prompt state, Exists holds the
// existence check and Failure the error that drove the machine to failed.
type Trace struct {
	Prompts int
	Exists  bool
	Failure error
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithPrompter sets the corrected-password prompt.
func WithPrompter(p Prompter) Option {
	return func(pr *Provisioner) {
		pr.prompt = p
	}
}

// WithReadyWait bounds the initial server readiness poll. A zero timeout
// disables it.
func WithReadyWait(timeout, interval time.Duration) Option {
	return func(pr *Provisioner) {
		pr.readyTimeout = timeout
		if interval > 0 {
			pr.readyInterval = interval
		}
	}
}

// Provisioner ensures the application database exists.
type Provisioner struct {
	db            Database
	prompt        Prompter
	readyTimeout  time.Duration
	readyInterval time.Duration
	state         string
	trace         Trace
}

// New constructs a Provisioner.
func New(db Database, opts ...Option) *Provisioner {
	p := &Provisioner{
		db:            db,
		readyTimeout:  30 * time.Second,
		readyInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// State returns the state the last Ensure call finished in.
func (p *Provisioner) State() string {
	return p.state
}

// Trace returns the machine context of the last Ensure call.
func (p *Provisioner) Trace() Trace {
	return p.trace
}

func buildMachine() (*statekit.Interpreter[Trace], error) {
	machine, err := statekit.NewMachine[Trace]("database-provisioner").
		WithInitial(StateUnauthenticated).
		WithContext(Trace{}).
		WithAction("countPrompt", func(t *Trace, _ statekit.Event) {
			t.Prompts++
		}).
		WithAction("recordExists", func(t *Trace, event statekit.Event) {
			t.Exists, _ = event.Payload.(bool)
		}).
		WithAction("recordFailure", func(t *Trace, event statekit.Event) {
			err, ok := event.Payload.(error)
			if !ok {
				err = errors.New("database provisioning failed")
			}
			if event.Type == EventAuthRejected {
				err = fmt.Errorf("authentication failed after corrected password: %w", err)
			}
			t.Failure = err
		}).
		State(StateUnauthenticated).
		On(EventAuthenticated).Target(StateAuthenticated).
		On(EventAuthRejected).Target(StateReprompting).
		On(EventFail).Target(StateFailed).Done().
		// A rejection of the corrected password ends the run.
		State(StateReprompting).
		OnEntry("countPrompt").
		On(EventAuthenticated).Target(StateAuthenticated).
		On(EventAuthRejected).Target(StateFailed).
		On(EventFail).Target(StateFailed).Done().
		State(StateAuthenticated).
		On(EventChecked).Target(StateDatabaseChecked).
		On(EventFail).Target(StateFailed).Done().
		State(StateDatabaseChecked).
		OnEntry("recordExists").
		On(EventEnsured).Target(StateDatabaseEnsured).
		On(EventFail).Target(StateFailed).Done().
		State(StateDatabaseEnsured).Final().Done().
		State(StateFailed).Final().
		OnEntry("recordFailure").Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// Ensure authenticates with creds, retrying once with a prompted password on
// an authentication failure, then creates creds.Database when absent. Each
// step is chosen by the machine's current state.
func (p *Provisioner) Ensure(ctx context.Context, creds dbclient.Credentials) (Result, error) {
	interp, err := buildMachine()
	if err != nil {
		return Result{}, fmt.Errorf("failed to build state machine: %w", err)
	}
	interp.Start()
	defer func() {
		final := interp.State()
		p.state = string(final.Value)
		p.trace = final.Context
		interp.Stop()
	}()

	logger := zerolog.Ctx(ctx).With().Object("credentials", creds).Logger()
	send := func(event string, payload any) {
		interp.Send(statekit.Event{Type: statekit.EventType(event), Payload: payload})
	}

	result := Result{Credentials: creds}
	if p.readyTimeout > 0 {
		if err := p.db.WaitReady(ctx, creds, p.readyTimeout, p.readyInterval); err != nil {
			send(EventFail, err)
		}
	}

	for {
		current := interp.State()
		switch string(current.Value) {
		case StateUnauthenticated, StateReprompting:
			err := p.db.Ping(ctx, result.Credentials)
			switch {
			case err == nil:
				logger.Debug().Msg("database authenticated")
				send(EventAuthenticated, nil)
			case failure.Is(err, failure.KindAuthenticationFailed) && p.prompt != nil:
				send(EventAuthRejected, err)
				if !interp.Matches(StateReprompting) {
					continue
				}
				logger.Warn().Msg("database authentication failed, asking for corrected password")
				password, promptErr := p.prompt(ctx, result.Credentials, err)
				if promptErr != nil {
					send(EventFail, promptErr)
					continue
				}
				result.Credentials = result.Credentials.WithPassword(password)
				result.Reprompted = true
			default:
				send(EventFail, err)
			}

		case StateAuthenticated:
			exists, err := p.db.DatabaseExists(ctx, result.Credentials, result.Credentials.Database)
			if err != nil {
				send(EventFail, err)
				continue
			}
			send(EventChecked, exists)

		case StateDatabaseChecked:
			if current.Context.Exists {
				result.Outcome = AlreadyExisted
				logger.Info().Msg("database already exists")
			} else {
				if err := p.db.CreateDatabase(ctx, result.Credentials, result.Credentials.Database); err != nil {
					send(EventFail, err)
					continue
				}
				result.Outcome = Created
				logger.Info().Msg("database created")
			}
			send(EventEnsured, nil)

		case StateDatabaseEnsured:
			return result, nil

		case StateFailed:
			return Result{Credentials: result.Credentials}, current.Context.Failure

		default:
			return Result{Credentials: result.Credentials}, fmt.Errorf("database provisioner in unknown state %q", current.Value)
		}
	}
}
