package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/pkg/config"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp/bundles/appstack"
	"github.com/BrianJOC/app-provisioner/utils/failure"
	"github.com/BrianJOC/app-provisioner/utils/journal"
	"github.com/BrianJOC/app-provisioner/utils/privilege"
)

type runOptions struct {
	tui          bool
	yes          bool
	noJournal    bool
	start        string
	mode         string
	secretPolicy string
	port         int
	dbHost       string
	dbPort       int
	dbUser       string
	dbName       string
}

func newRunCommand(g *globals) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the project and launch the application",
		Long: `Run every provisioning step in order. Steps whose work is already done are
skipped. When a step needs administrative rights that this process lacks,
the command relaunches itself elevated and exits.`,
		Example: `  # Interactive run in the current directory
  provision run

  # Full-screen interface
  provision run --tui

  # Unattended run that never starts the app
  provision run --yes --start never -p ./app`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, g, opts)
		},
	}

	opts.bind(cmd.Flags())
	return cmd
}

// bind registers the run flags on flags.
func (o *runOptions) bind(flags *pflag.FlagSet) {
	flags.BoolVar(&o.tui, "tui", false, "use the full-screen interface")
	flags.BoolVarP(&o.yes, "yes", "y", false, "never prompt; accept defaults or fail")
	flags.BoolVar(&o.noJournal, "no-journal", false, "do not record this run in the history")
	flags.StringVar(&o.start, "start", "", "start the app after provisioning: ask, always or never")
	flags.StringVar(&o.mode, "mode", "", "application mode: development or production")
	flags.StringVar(&o.secretPolicy, "secret-policy", "", "session secret on re-runs: regenerate or preserve")
	flags.IntVar(&o.port, "port", 0, "application port")
	flags.StringVar(&o.dbHost, "db-host", "", "PostgreSQL host")
	flags.IntVar(&o.dbPort, "db-port", 0, "PostgreSQL port")
	flags.StringVar(&o.dbUser, "db-user", "", "PostgreSQL user")
	flags.StringVar(&o.dbName, "db-name", "", "application database name")
}

// apply copies every flag the operator set over cfg.
func (o *runOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("start") {
		cfg.App.Start = o.start
	}
	if flags.Changed("mode") {
		cfg.App.Mode = o.mode
	}
	if flags.Changed("secret-policy") {
		cfg.App.SecretPolicy = o.secretPolicy
	}
	if flags.Changed("port") {
		cfg.App.Port = o.port
	}
	if flags.Changed("db-host") {
		cfg.Database.Host = o.dbHost
	}
	if flags.Changed("db-port") {
		cfg.Database.Port = o.dbPort
	}
	if flags.Changed("db-user") {
		cfg.Database.User = o.dbUser
	}
	if flags.Changed("db-name") {
		cfg.Database.Name = o.dbName
	}
	if o.noJournal {
		cfg.Journal.Enabled = false
	}
}

func runProvision(cmd *cobra.Command, g *globals, opts *runOptions) error {
	ctx := cmd.Context()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.tui && g.logFile == "" {
		// The full-screen interface owns the terminal.
		ctx = zerolog.Nop().WithContext(ctx)
	}
	logger := zerolog.Ctx(ctx)

	gate := g.privilegeGate()
	relay := phasedapp.NewRelay()
	list, err := appstack.Bundle(cfg, appstack.Deps{
		Runner:   g.commandRunner(),
		Output:   relay.Line,
		Prompt:   relay,
		Elevated: gate.Elevated(),
	})
	if err != nil {
		return err
	}

	decision, err := elevate(ctx, gate, list, g)
	if err != nil {
		reportFailure(cmd.ErrOrStderr(), err)
		return ExitError{Code: 1}
	}
	if decision == privilege.HandedOff {
		logger.Info().Msg("elevated process took over")
		return nil
	}

	app, err := phasedapp.New(phasedapp.WithPhases(list...), phasedapp.WithRelay(relay))
	if err != nil {
		return err
	}

	var report *phases.Report
	if opts.tui {
		report, err = app.Run(ctx)
	} else {
		var consoleOpts []phasedapp.ConsoleOption
		if opts.yes {
			consoleOpts = append(consoleOpts, phasedapp.WithNonInteractive())
		}
		report, err = app.RunConsole(ctx, phasedapp.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), consoleOpts...))
	}
	if report == nil {
		if err == nil {
			err = errors.New("provisioning produced no report")
		}
		return err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("interface exited with error")
	}

	logger.Info().
		Str("run_id", report.RunID).
		Str("status", report.Status()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("provisioning finished")

	if cfg.Journal.Enabled {
		if err := record(ctx, cfg, report); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Journal.Path).Msg("could not record run history")
		}
	}

	if code := report.ExitCode(); code != 0 {
		return ExitError{Code: code}
	}
	return nil
}

// elevate checks the privileged phases and relaunches elevated when any of
// them still has work to do.
func elevate(ctx context.Context, gate *privilege.Gate, list []phases.Phase, g *globals) (privilege.Decision, error) {
	manager := phases.NewManager()
	if err := manager.Register(phasedapp.SelectPhases(list, phasedapp.NeedsElevation())...); err != nil {
		return privilege.Proceed, err
	}
	pending := manager.PendingElevation(ctx, phases.NewContext())
	if len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for _, meta := range pending {
			ids = append(ids, meta.ID)
		}
		zerolog.Ctx(ctx).Debug().Strs("phases", ids).Msg("privileged phases pending")
	}
	return gate.Ensure(ctx, privilege.Request{
		Needed:     len(pending) > 0,
		Relaunched: g.relaunched,
		Args:       g.args,
	})
}

func reportFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if remediation := failure.RemediationOf(err); remediation != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(remediation))
	}
}

func record(ctx context.Context, cfg config.Config, report *phases.Report) error {
	store, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, journalRun(cfg.Project.Dir, report))
}

// journalRun converts a report to its history record. Failure causes are
// stored as their message only.
func journalRun(projectDir string, report *phases.Report) journal.Run {
	run := journal.Run{
		ID:              report.RunID,
		ProjectDir:      projectDir,
		Status:          report.Status(),
		ExitCode:        report.ExitCode(),
		RestartRequired: report.RestartRequired,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		Steps:           make([]journal.StepRecord, 0, len(report.Results)),
	}
	for i, res := range report.Results {
		step := journal.StepRecord{
			Position: i + 1,
			StepID:   res.PhaseID,
			Title:    res.Title,
			Outcome:  string(res.Outcome),
			Detail:   res.Detail,
			Duration: res.Duration,
		}
		if res.Err != nil {
			step.Error = res.Err.Error()
		}
		run.Steps = append(run.Steps, step)
	}
	return run
}
