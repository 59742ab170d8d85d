// Package dbclient wraps the PostgreSQL command line client tools and turns
// their output into classified failures.
package dbclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

const (
	maintenanceDB  = "postgres"
	connectTimeout = "10"
)

// Client runs psql and pg_isready.
type Client struct {
	runner    cmdrunner.Runner
	psql      string
	pgIsReady string
	sleep     func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBinaries overrides the psql and pg_isready binaries.
func WithBinaries(psql, pgIsReady string) Option {
	return func(c *Client) {
		if psql != "" {
			c.psql = psql
		}
		if pgIsReady != "" {
			c.pgIsReady = pgIsReady
		}
	}
}

// WithSleep overrides the wait used between readiness polls.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New constructs a Client.
func New(runner cmdrunner.Runner, opts ...Option) *Client {
	c := &Client{
		runner:    runner,
		psql:      "psql",
		pgIsReady: "pg_isready",
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WaitReady polls pg_isready until the server accepts connections or the
// timeout elapses. A missing pg_isready binary is not an error.
func (c *Client) WaitReady(ctx context.Context, creds Credentials, timeout, interval time.Duration) error {
	logger := zerolog.Ctx(ctx)
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		res, err := c.runner.Execute(ctx, cmdrunner.Request{
			Command: c.pgIsReady,
			Args:    []string{"-h", creds.Host, "-p", strconv.Itoa(creds.Port), "-U", creds.User},
		})
		if err != nil {
			if failure.Is(err, failure.KindNotFound) {
				logger.Debug().Msg("pg_isready not available, skipping readiness wait")
				return nil
			}
			return err
		}
		if res.ExitCode == 0 {
			return nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			return failure.New(failure.KindConnectivityFailed, "pg_isready",
				fmt.Errorf("server at %s:%d not ready after %s", creds.Host, creds.Port, timeout)).
				WithStderr(res.Stdout + res.Stderr).
				WithRemediation(connectivityRemediation(creds))
		}
		logger.Debug().Int("attempt", attempt).Int("exit_code", res.ExitCode).Msg("database not ready yet")
		if err := c.sleep(ctx, interval); err != nil {
			return failure.New(failure.KindTerminated, "pg_isready", err)
		}
	}
}

// Ping authenticates against the maintenance database.
func (c *Client) Ping(ctx context.Context, creds Credentials) error {
	_, err := c.query(ctx, creds, "ping", "SELECT 1")
	return err
}

// DatabaseExists reports whether a database with exactly this name exists.
func (c *Client) DatabaseExists(ctx context.Context, creds Credentials, name string) (bool, error) {
	out, err := c.query(ctx, creds, "check database",
		"SELECT 1 FROM pg_catalog.pg_database WHERE datname = "+QuoteLiteral(name))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "1", nil
}

// CreateDatabase creates the named database.
func (c *Client) CreateDatabase(ctx context.Context, creds Credentials, name string) error {
	_, err := c.query(ctx, creds, "create database", "CREATE DATABASE "+QuoteIdentifier(name))
	return err
}

func (c *Client) query(ctx context.Context, creds Credentials, op, sql string) (string, error) {
	// The password only ever lives in this per-call overlay.
	overlay := map[string]string{
		"PGPASSWORD":        creds.Password,
		"PGCONNECT_TIMEOUT": connectTimeout,
	}
	defer cmdrunner.Clear(overlay)

	res, err := c.runner.Execute(ctx, cmdrunner.Request{
		Command: c.psql,
		Args: []string{
			"-w", "-X",
			"-h", creds.Host,
			"-p", strconv.Itoa(creds.Port),
			"-U", creds.User,
			"-d", maintenanceDB,
			"-v", "ON_ERROR_STOP=1",
			"-tAc", sql,
		},
		Env: overlay,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", Classify(op, res, creds)
	}
	return res.Stdout, nil
}

// Classify maps a failed psql invocation to a failure kind.
func Classify(op string, res cmdrunner.Result, creds Credentials) error {
	stderr := strings.ToLower(res.Stderr)
	base := fmt.Errorf("exit status %d", res.ExitCode)
	switch {
	case strings.Contains(stderr, "password authentication failed"),
		strings.Contains(stderr, "no password supplied"),
		strings.Contains(stderr, "authentication failed"):
		return failure.New(failure.KindAuthenticationFailed, op, base).
			WithStderr(res.Stderr).
			WithRemediation(fmt.Sprintf("Check the password for database user %q.", creds.User))
	case strings.Contains(stderr, "could not connect"),
		strings.Contains(stderr, "connection refused"),
		strings.Contains(stderr, "could not translate host name"),
		strings.Contains(stderr, "timeout expired"),
		strings.Contains(stderr, "no route to host"),
		strings.Contains(stderr, "is the server running"):
		return failure.New(failure.KindConnectivityFailed, op, base).
			WithStderr(res.Stderr).
			WithRemediation(connectivityRemediation(creds))
	default:
		return failure.New(failure.KindExecutionFailed, op, base).
			WithStderr(res.Stderr).
			WithRemediation(privilegeRemediation(creds))
	}
}

// QuoteLiteral renders s as a SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdentifier renders s as a SQL identifier, preserving case.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func connectivityRemediation(creds Credentials) string {
	return fmt.Sprintf("Make sure the PostgreSQL service is running and listening on %s:%d, "+
		"and that no firewall blocks the connection.", creds.Host, creds.Port)
}

func privilegeRemediation(creds Credentials) string {
	return fmt.Sprintf("Make sure user %q is allowed to create databases (CREATEDB) "+
		"and check the PostgreSQL server log for details.", creds.User)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
