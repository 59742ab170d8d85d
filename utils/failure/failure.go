// Package failure classifies provisioning errors into the kinds the pipeline
// reacts to (install fallback, single re-prompt, fatal abort, restart halt).
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies how a failure should be handled by callers.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound means a tool or binary is absent. It triggers an install path.
	KindNotFound
	// KindMethodUnavailable means an install method's precondition failed.
	KindMethodUnavailable
	// KindExecutionFailed means a command ran and exited non-zero.
	KindExecutionFailed
	// KindAuthenticationFailed means the database rejected the credentials.
	KindAuthenticationFailed
	// KindConnectivityFailed means the database host or port is unreachable.
	KindConnectivityFailed
	// KindRestartRequired means the change only takes effect in a fresh session.
	KindRestartRequired
	// KindTerminated means the command was stopped after cancellation.
	KindTerminated
	// KindManualActionRequired means no automated method can finish the job.
	KindManualActionRequired
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMethodUnavailable:
		return "method_unavailable"
	case KindExecutionFailed:
		return "execution_failed"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindConnectivityFailed:
		return "connectivity_failed"
	case KindRestartRequired:
		return "restart_required"
	case KindTerminated:
		return "terminated"
	case KindManualActionRequired:
		return "manual_action_required"
	default:
		return "unknown"
	}
}

// Error carries a classified failure.
type Error struct {
	Kind        Kind
	Op          string
	Err         error
	Stderr      string
	Remediation string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, " (%s)", lastLine(stderr))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithStderr attaches captured stderr.
func (e *Error) WithStderr(stderr string) *Error {
	e.Stderr = stderr
	return e
}

// WithRemediation attaches operator-facing remediation text.
func (e *Error) WithRemediation(text string) *Error {
	e.Remediation = text
	return e
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RemediationOf returns the first non-empty remediation text in the chain.
func RemediationOf(err error) string {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Remediation != "" {
			return fe.Remediation
		}
		err = fe.Err
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
