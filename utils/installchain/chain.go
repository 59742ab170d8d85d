// Package installchain tries an ordered list of install methods for a
// dependency until one succeeds.
package installchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Outcome is the result of an install attempt.
type Outcome int

const (
	Failed Outcome = iota
	Succeeded
	// SucceededRequiresRestart means the install worked but only a new session
	// will see it.
	SucceededRequiresRestart
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case SucceededRequiresRestart:
		return "succeeded_requires_restart"
	default:
		return "failed"
	}
}

// MethodKind tags a method variant.
type MethodKind string

const (
	KindPackageManager    MethodKind = "package_manager"
	KindDirectDownload    MethodKind = "direct_download"
	KindManualInstruction MethodKind = "manual_instruction"
)

// Method is one way of installing a dependency.
type Method interface {
	Name() string
	Kind() MethodKind
	Available(ctx context.Context) (bool, string)
	Install(ctx context.Context) (Outcome, error)
}

// Attempt records what happened with a single method.
type Attempt struct {
	Method   string
	Kind     MethodKind
	Skipped  bool
	Reason   string
	Err      error
	Duration time.Duration
}

// Result summarises a chain run.
type Result struct {
	Outcome  Outcome
	Method   string
	Attempts []Attempt
}

// Chain is an ordered fallback list for one dependency.
type Chain struct {
	Dependency string
	Methods    []Method
}

// Install runs methods in order and returns on the first success. When every
// method fails the error wraps a *ChainError.
func (c Chain) Install(ctx context.Context) (Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("dependency", c.Dependency).Logger()
	result := Result{Outcome: Failed}

	for _, m := range c.Methods {
		if err := ctx.Err(); err != nil {
			return result, failure.New(failure.KindTerminated, "install "+c.Dependency, err)
		}

		attempt := Attempt{Method: m.Name(), Kind: m.Kind()}
		ok, reason := m.Available(ctx)
		if !ok {
			attempt.Skipped = true
			attempt.Reason = reason
			attempt.Err = failure.New(failure.KindMethodUnavailable, m.Name(), errors.New(reason))
			result.Attempts = append(result.Attempts, attempt)
			logger.Debug().Str("method", m.Name()).Str("reason", reason).Msg("install method unavailable")
			continue
		}

		logger.Info().Str("method", m.Name()).Msg("trying install method")
		started := time.Now()
		outcome, err := m.Install(ctx)
		attempt.Duration = time.Since(started)
		if err == nil && outcome == Failed {
			err = errors.New("method reported failure")
		}
		if err != nil {
			attempt.Err = err
			result.Attempts = append(result.Attempts, attempt)
			if failure.Is(err, failure.KindTerminated) {
				return result, err
			}
			logger.Warn().Str("method", m.Name()).Err(err).Msg("install method failed, falling back")
			continue
		}

		result.Attempts = append(result.Attempts, attempt)
		result.Outcome = outcome
		result.Method = m.Name()
		logger.Info().Str("method", m.Name()).Str("outcome", outcome.String()).Dur("duration", attempt.Duration).Msg("dependency installed")
		return result, nil
	}

	chainErr := &ChainError{Dependency: c.Dependency, Attempts: result.Attempts}
	return result, failure.New(failure.KindManualActionRequired, "install "+c.Dependency, chainErr).
		WithRemediation(chainErr.Remediation())
}

// ChainError aggregates every attempted method's failure.
type ChainError struct {
	Dependency string
	Attempts   []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			parts = append(parts, fmt.Sprintf("%s: skipped (%s)", a.Method, a.Reason))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", a.Method, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no install methods configured for %s", e.Dependency)
	}
	return fmt.Sprintf("all install methods failed for %s: %s", e.Dependency, strings.Join(parts, "; "))
}

// Unwrap exposes every attempt error.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Remediation returns the remediation of the latest attempt that carried one.
func (e *ChainError) Remediation() string {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if text := failure.RemediationOf(e.Attempts[i].Err); text != "" {
			return text
		}
	}
	return fmt.Sprintf("Install %s manually and run the provisioner again.", e.Dependency)
}
