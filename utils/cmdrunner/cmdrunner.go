// Package cmdrunner executes local external commands, either buffered or with
// live line streaming, and converts every failure into a failure.Kind.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/failure"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultTailBytes   = 64 * 1024
)

// Stream identifies which pipe a streamed line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is a single line of child output delivered to a LineFunc.
type Line struct {
	Stream Stream
	Text   string
}

// LineFunc receives streamed output. Calls are serialized.
type LineFunc func(Line)

// Request describes one command invocation.
type Request struct {
	Command string
	Args    []string
	// Env is overlaid on the current process environment for the child only.
	Env map[string]string
	Dir string
	// Stream enables live forwarding of output lines when non-nil.
	Stream LineFunc
	// Check turns a non-zero exit into an ExecutionFailed error. When false the
	// caller inspects Result.ExitCode itself.
	Check bool
}

// Command builds a Request from an argv list. An empty list yields an empty
// Command, which Execute rejects.
func Command(argv []string) Request {
	if len(argv) == 0 {
		return Request{}
	}
	return Request{Command: argv[0], Args: append([]string(nil), argv[1:]...)}
}

// Result reports how the child process ended.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	Terminated bool
	Duration   time.Duration
}

// Success returns true if the command exited with code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.Terminated
}

// Runner executes commands.
type Runner interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

// Execute implements Runner.
func (f RunnerFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Option configures an Exec.
type Option func(*Exec)

// WithGracePeriod bounds how long a cancelled child may take to exit after the
// termination request before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Exec) {
		if d > 0 {
			e.gracePeriod = d
		}
	}
}

// WithTailBytes bounds how much streamed output is retained for the result.
func WithTailBytes(n int) Option {
	return func(e *Exec) {
		if n > 0 {
			e.tailBytes = n
		}
	}
}

// WithLookPath overrides binary resolution (useful for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Exec) {
		if fn != nil {
			e.lookPath = fn
		}
	}
}

// Exec runs real processes.
type Exec struct {
	gracePeriod time.Duration
	tailBytes   int
	lookPath    func(string) (string, error)
}

// New constructs an Exec runner.
func New(opts ...Option) *Exec {
	e := &Exec{
		gracePeriod: defaultGracePeriod,
		tailBytes:   defaultTailBytes,
		lookPath:    exec.LookPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute implements Runner.
func (e *Exec) Execute(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return Result{ExitCode: -1}, ValidationError{Reason: "command is required"}
	}
	op := describe(command, req.Args)
	logger := zerolog.Ctx(ctx)

	path, err := e.lookPath(command)
	if err != nil {
		logger.Debug().Str("command", command).Msg("binary not found")
		return Result{ExitCode: -1}, failure.New(failure.KindNotFound, op, err)
	}

	cmd := exec.CommandContext(ctx, path, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), req.Env)
	}
	configureProcess(cmd)
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = e.gracePeriod

	var stdout, stderr outputSink
	if req.Stream != nil {
		var mu sync.Mutex
		stdout = newLineWriter(Stdout, req.Stream, &mu, e.tailBytes)
		stderr = newLineWriter(Stderr, req.Stream, &mu, e.tailBytes)
	} else {
		stdout = &bufferSink{}
		stderr = &bufferSink{}
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug().
		Str("command", op).
		Strs("args", req.Args).
		Str("dir", req.Dir).
		Strs("env_keys", envKeys(req.Env)).
		Bool("streaming", req.Stream != nil).
		Msg("executing command")

	started := time.Now()
	runErr := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if ctxErr := ctx.Err(); ctxErr != nil && runErr != nil {
		result.Terminated = true
		result.ExitCode = exitCode(runErr)
		logger.Warn().Str("command", op).Dur("duration", result.Duration).Msg("command terminated after cancellation")
		return result, failure.New(failure.KindTerminated, op, ctxErr).WithStderr(result.Stderr)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			result.ExitCode = -1
			return result, failure.New(failure.KindExecutionFailed, op, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	logger.Debug().
		Str("command", op).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("command finished")

	if result.ExitCode != 0 && req.Check {
		return result, failure.New(failure.KindExecutionFailed, op, fmt.Errorf("exit status %d", result.ExitCode)).
			WithStderr(result.Stderr)
	}
	return result, nil
}

// MergeEnv overlays values on base, replacing existing keys.
func MergeEnv(base []string, overlay map[string]string) []string {
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := lookupOverlay(overlay, key); replaced {
			continue
		}
		out = append(out, kv)
	}
	for _, key := range envKeys(overlay) {
		out = append(out, key+"="+overlay[key])
	}
	return out
}

// Clear removes every key from an overlay so secrets do not outlive the call.
func Clear(overlay map[string]string) {
	for key := range overlay {
		overlay[key] = ""
		delete(overlay, key)
	}
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + args[0]
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type outputSink interface {
	io.Writer
	Flush()
	String() string
}

type bufferSink struct {
	bytes.Buffer
}

func (b *bufferSink) Flush() {}

// lineWriter splits written bytes into lines, forwards complete lines and keeps
// a bounded tail of everything seen.
type lineWriter struct {
	stream  Stream
	fn      LineFunc
	mu      *sync.Mutex
	partial []byte
	tail    []byte
	limit   int
}

func newLineWriter(stream Stream, fn LineFunc, mu *sync.Mutex, limit int) *lineWriter {
	return &lineWriter{stream: stream, fn: fn, mu: mu, limit: limit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)
	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.partial[:idx]), "\r")
		w.partial = w.partial[idx+1:]
		w.emit(line)
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if len(w.partial) == 0 {
		return
	}
	line := strings.TrimRight(string(w.partial), "\r")
	w.partial = nil
	w.emit(line)
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.tail)
}

func (w *lineWriter) emit(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tail = append(w.tail, line...)
	w.tail = append(w.tail, '\n')
	if over := len(w.tail) - w.limit; over > 0 {
		w.tail = w.tail[over:]
	}
	w.fn(Line{Stream: w.stream, Text: line})
}

func lookupOverlay(overlay map[string]string, key string) (string, bool) {
	for k, v := range overlay {
		if envKeyEqual(k, key) {
			return v, true
		}
	}
	return "", false
}
