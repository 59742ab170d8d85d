package phasedapp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Console is the line-oriented front-end: progress lines, streamed child
// output and prompts on a plain terminal or pipe.
type Console struct {
	out         io.Writer
	in          *bufio.Reader
	fd          int
	tty         bool
	interactive bool
	width       int

	mu sync.Mutex
	// readPassword reads a line without echo.
	readPassword func() (string, error)
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithNonInteractive answers every prompt with its default and fails inputs
// that have none.
func WithNonInteractive() ConsoleOption {
	return func(c *Console) {
		c.interactive = false
	}
}

// WithWidth wraps summary text at width columns.
func WithWidth(width int) ConsoleOption {
	return func(c *Console) {
		c.width = width
	}
}

// WithPasswordReader overrides how secrets are read (for tests).
func WithPasswordReader(fn func() (string, error)) ConsoleOption {
	return func(c *Console) {
		if fn != nil {
			c.readPassword = fn
		}
	}
}

// NewConsole creates a console front-end. Secrets are read without echo when
// in is a terminal.
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, in: bufio.NewReader(in), interactive: true}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd, c.tty = int(f.Fd()), true
	}
	c.readPassword = c.defaultReadPassword
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// PhaseStarted implements phases.Observer.
func (c *Console) PhaseStarted(meta phases.PhaseMetadata) {
	c.printf("%s\n", runningStyle.Render("▶ "+meta.Title))
}

// PhaseCompleted implements phases.Observer.
func (c *Console) PhaseCompleted(_ phases.PhaseMetadata, result phases.RunResult) {
	c.printf("%s\n", resultLine(result))
	if result.Outcome.Failed() && result.Err != nil {
		c.printf("  %s\n", errorTextStyle.Render(causeOf(result.Err)))
	}
}

// Line prints one line of child output.
func (c *Console) Line(l cmdrunner.Line) {
	style := logTextStyle
	if l.Stream == cmdrunner.Stderr {
		style = subtitleStyle
	}
	c.printf("  │ %s\n", style.Render(l.Text))
}

// Summary prints the report of the main sequence.
func (c *Console) Summary(report *phases.Report) {
	c.printf("\n%s\n\n", RenderSummary(report, c.width))
}

// RequestInput implements phases.InputHandler.
func (c *Console) RequestInput(ctx context.Context, meta phases.PhaseMetadata, input phases.InputDefinition, reason string) (any, error) {
	if !c.interactive {
		if input.Default != nil {
			return input.Default, nil
		}
		return nil, failure.New(failure.KindManualActionRequired, "prompt "+input.ID,
			fmt.Errorf("%s needs %q but the run is non-interactive", meta.Title, input.Label)).
			WithRemediation("Run the provisioner interactively, or set the value in its configuration file.")
	}

	c.printf("\n%s\n", detailTitleStyle.Render(input.Label))
	if input.Description != "" {
		c.printf("%s\n", input.Description)
	}
	if reason != "" {
		c.printf("%s\n", infoTextStyle.Render("Reason: "+sanitizeInputReason(input, reason)))
	}

	type answer struct {
		value any
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		v, err := c.ask(input)
		ch <- answer{v, err}
	}()
	select {
	case a := <-ch:
		return a.value, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Console) ask(input phases.InputDefinition) (any, error) {
	switch input.Kind {
	case phases.InputKindConfirm:
		def, _ := input.Default.(bool)
		hint := "[y/N]"
		if def {
			hint = "[Y/n]"
		}
		c.printf("%s ", hint)
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		}
		return false, nil

	case phases.InputKindSelect:
		for idx, opt := range input.Options {
			c.printf("  %d. %s\n", idx+1, opt.Label)
		}
		for {
			c.printf("> ")
			line, err := c.readLine()
			if err != nil {
				return nil, err
			}
			if line == "" && input.Default != nil {
				return defaultString(input.Default), nil
			}
			if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(input.Options) {
				return input.Options[n-1].Value, nil
			}
			c.printf("Enter a number between 1 and %d.\n", len(input.Options))
		}

	case phases.InputKindSecret:
		for {
			c.printf("> ")
			value, err := c.readPassword()
			if err != nil {
				return nil, err
			}
			if value != "" || !input.Required {
				return value, nil
			}
			c.printf("A value is required.\n")
		}
	}

	for {
		c.printf("> ")
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			line = defaultString(input.Default)
		}
		if line != "" || !input.Required {
			return line, nil
		}
		c.printf("A value is required.\n")
	}
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) defaultReadPassword() (string, error) {
	if !c.tty {
		line, err := c.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("read input: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	pw, err := term.ReadPassword(c.fd)
	c.printf("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
