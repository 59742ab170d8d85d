// Package phasedapp hosts the front-ends of the provisioner. It wires the
// phases.Manager, observers and input handling behind a small lifecycle API:
// a Bubble Tea TUI and a line-oriented console runner share the same run
// sequence and summary rendering.
package phasedapp

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BrianJOC/app-provisioner/phases"
)

var (
	// ErrNoPhases indicates no phases were supplied when constructing an App.
	ErrNoPhases = errors.New("phasedapp: at least one phase must be registered")
	// ErrProgramRunning reports that Run was invoked while a run is in flight.
	ErrProgramRunning = errors.New("phasedapp: program already running")
)

// Config controls how an App should be assembled.
type Config struct {
	Phases         []phases.Phase
	ManagerOptions []phases.ManagerOption
	ProgramOptions []tea.ProgramOption
	Relay          *Relay
}

// Option mutates Config during construction.
type Option func(*Config)

// WithPhases sets the ordered phases the app should execute.
func WithPhases(list ...phases.Phase) Option {
	return func(cfg *Config) {
		cfg.Phases = append(cfg.Phases, list...)
	}
}

// WithManagerOptions appends custom manager options.
func WithManagerOptions(opts ...phases.ManagerOption) Option {
	return func(cfg *Config) {
		cfg.ManagerOptions = append(cfg.ManagerOptions, opts...)
	}
}

// WithProgramOptions appends tea.Program options.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(cfg *Config) {
		cfg.ProgramOptions = append(cfg.ProgramOptions, opts...)
	}
}

// WithRelay attaches the relay the phases were built with to the running
// front-end.
func WithRelay(r *Relay) Option {
	return func(cfg *Config) {
		cfg.Relay = r
	}
}

// App runs the provisioning phases behind a front-end.
type App struct {
	cfg      Config
	mu       sync.Mutex
	program  *tea.Program
	inFlight bool
}

// New constructs an App from the provided options.
func New(opts ...Option) (*App, error) {
	cfg := Config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if len(cfg.Phases) == 0 {
		return nil, ErrNoPhases
	}
	return &App{cfg: cfg}, nil
}

// Run executes the phases inside the TUI and returns the final report once
// the operator leaves the program.
func (a *App) Run(ctx context.Context) (*phases.Report, error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := newEventBus()
	manager, err := a.manager(phases.WithObserver(bus), phases.WithInputHandler(bus))
	if err != nil {
		return nil, err
	}
	detach := a.cfg.Relay.attach(bus.Line, bus)
	defer detach()

	m := newModel(runCtx, cancel, bus, manager.Phases())
	program := tea.NewProgram(m, a.cfg.ProgramOptions...)
	a.mu.Lock()
	a.program = program
	a.mu.Unlock()

	done := make(chan *phases.Report, 1)
	go func() {
		done <- execute(runCtx, manager, func(report *phases.Report) {
			bus.send(sequenceDoneMsg{report: snapshot(report)})
		}, func(report *phases.Report) {
			bus.send(finishedMsg{report: snapshot(report)})
		})
	}()

	_, runErr := program.Run()
	bus.close()
	cancel()
	return <-done, runErr
}

// RunConsole executes the phases with line-oriented output on console.
func (a *App) RunConsole(ctx context.Context, console *Console) (*phases.Report, error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	manager, err := a.manager(phases.WithObserver(console), phases.WithInputHandler(console))
	if err != nil {
		return nil, err
	}
	detach := a.cfg.Relay.attach(console.Line, console)
	defer detach()

	return execute(ctx, manager, console.Summary, nil), nil
}

// Stop asks a running TUI to exit. The run context is cancelled on exit.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.program != nil {
		a.program.Quit()
	}
	return nil
}

func (a *App) manager(frontend ...phases.ManagerOption) (*phases.Manager, error) {
	opts := append([]phases.ManagerOption{}, a.cfg.ManagerOptions...)
	opts = append(opts, frontend...)
	manager := phases.NewManager(opts...)
	if err := manager.Register(a.cfg.Phases...); err != nil {
		return nil, err
	}
	return manager, nil
}

func (a *App) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight {
		return ErrProgramRunning
	}
	a.inFlight = true
	return nil
}

func (a *App) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.program = nil
	a.inFlight = false
}

// execute runs the main sequence, presents its report and only then runs
// the deferred phases.
func execute(ctx context.Context, manager *phases.Manager, present, finished func(*phases.Report)) *phases.Report {
	phaseCtx := phases.NewContext()
	report := manager.Run(ctx, phaseCtx)
	if present != nil {
		present(report)
	}
	manager.Finish(ctx, phaseCtx, report)
	if finished != nil {
		finished(report)
	}
	return report
}

// snapshot copies a report so the UI goroutine never shares it with the
// manager.
func snapshot(report *phases.Report) *phases.Report {
	if report == nil {
		return nil
	}
	cp := *report
	cp.Results = append([]phases.RunResult(nil), report.Results...)
	return &cp
}
