// Package database provides the phase that authenticates against PostgreSQL
// and makes sure the application database exists.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/dbclient"
	"github.com/BrianJOC/app-provisioner/utils/dbprovision"
)

const (
	phaseID = "database"
	// InputPassword is the corrected password requested after a rejection.
	InputPassword = "password"
	// ContextKeyCredentials holds the dbclient.Credentials that authenticated.
	ContextKeyCredentials = "database:credentials"
)

// Phase ensures the application database exists.
type Phase struct {
	db           dbprovision.Database
	creds        dbclient.Credentials
	prompt       phases.InputHandler
	readyTimeout time.Duration
}

// Option configures the phase.
type Option func(*Phase)

// WithPrompt sets the handler asked for a corrected password.
func WithPrompt(handler phases.InputHandler) Option {
	return func(p *Phase) {
		p.prompt = handler
	}
}

// WithReadyTimeout bounds the wait for a freshly started server.
func WithReadyTimeout(d time.Duration) Option {
	return func(p *Phase) {
		p.readyTimeout = d
	}
}

// New creates the database phase.
func New(db dbprovision.Database, creds dbclient.Credentials, opts ...Option) *Phase {
	p := &Phase{db: db, creds: creds, readyTimeout: 30 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		ID:          phaseID,
		Title:       "Ensure application database",
		Description: fmt.Sprintf("Connect to PostgreSQL and create database %q when missing.", p.creds.Database),
		Fatal:       true,
		Inputs:      []phases.InputDefinition{passwordInput(p.creds)},
		Tags:        []string{"database"},
	}
}

// Check looks the database up with the configured credentials. Any failure
// leaves the work to Run, which owns readiness waits and the re-prompt.
func (p *Phase) Check(ctx context.Context, phaseCtx *phases.Context) (phases.Probe, error) {
	if p.db == nil {
		return phases.Probe{}, phases.ValidationError{Reason: "database client is required"}
	}
	exists, err := p.db.DatabaseExists(ctx, p.creds, p.creds.Database)
	if err != nil || !exists {
		return phases.Probe{}, nil
	}
	phaseCtx.Set(ContextKeyCredentials, p.creds)
	return phases.Probe{Satisfied: true, Detail: fmt.Sprintf("database %s already exists", p.creds.Database)}, nil
}

func (p *Phase) Run(ctx context.Context, phaseCtx *phases.Context) (string, error) {
	if p.db == nil {
		return "", phases.ValidationError{Reason: "database client is required"}
	}

	opts := []dbprovision.Option{dbprovision.WithReadyWait(p.readyTimeout, 2*time.Second)}
	if p.prompt != nil {
		opts = append(opts, dbprovision.WithPrompter(p.prompter()))
	}
	res, err := dbprovision.New(p.db, opts...).Ensure(ctx, p.creds)
	if err != nil {
		return "", err
	}

	phaseCtx.Set(ContextKeyCredentials, res.Credentials)
	if res.Outcome == dbprovision.AlreadyExisted {
		return "", phases.SatisfiedError{Detail: fmt.Sprintf("database %s already exists", res.Credentials.Database)}
	}
	return fmt.Sprintf("created database %s", res.Credentials.Database), nil
}

func (p *Phase) prompter() dbprovision.Prompter {
	return func(ctx context.Context, creds dbclient.Credentials, cause error) (string, error) {
		meta := p.Metadata()
		value, err := p.prompt.RequestInput(ctx, meta, passwordInput(creds), cause.Error())
		if err != nil {
			return "", err
		}
		password, ok := value.(string)
		if !ok {
			return "", errors.New("password input must be a string")
		}
		return password, nil
	}
}

// Credentials returns the credentials stored by a completed database phase,
// falling back to def.
func Credentials(phaseCtx *phases.Context, def dbclient.Credentials) dbclient.Credentials {
	if creds, ok := phases.Value[dbclient.Credentials](phaseCtx, ContextKeyCredentials); ok {
		return creds
	}
	return def
}

func passwordInput(creds dbclient.Credentials) phases.InputDefinition {
	return phases.SecretInput(InputPassword, fmt.Sprintf("PostgreSQL password for %s", creds.User),
		phases.WithDescription("The database rejected the configured password. Enter the correct one."),
		phases.Required(),
	)
}
