// Package commands implements the provision command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/BrianJOC/app-provisioner/pkg/config"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/privilege"
)

// EnvLogLevel overrides the default log level when --log-level is absent.
const EnvLogLevel = "PROVISION_LOG_LEVEL"

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// globals are the persistent flags plus process facts shared by commands.
type globals struct {
	configPath string
	projectDir string
	logLevel   string
	logFormat  string
	logFile    string

	// args is the command line without the relaunch marker.
	args       []string
	relaunched bool

	runner cmdrunner.Runner
	gate   *privilege.Gate
	logOut io.Writer
}

// Execute runs the root command with args (without the program name).
func Execute(ctx context.Context, info BuildInfo, args []string) error {
	clean, relaunched := privilege.StripElevatedFlag(args)
	g := &globals{args: clean, relaunched: relaunched}
	rootCmd := newRootCommand(info, g)
	rootCmd.SetArgs(clean)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(info BuildInfo, g *globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a Node.js application backed by PostgreSQL",
		Long: `provision prepares a workstation to run the application: it installs the
JavaScript runtime and PostgreSQL when missing, creates the database, writes
the .env file, installs dependencies, applies migrations, builds, verifies
that the app starts and finally launches it.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := g.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logger.WithContext(ctx))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path (default <project>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVarP(&g.projectDir, "project", "p", ".", "application project directory")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (env "+EnvLogLevel+")")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "console", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(newRunCommand(g))
	rootCmd.AddCommand(newProbeCommand(g))
	rootCmd.AddCommand(newHistoryCommand(g))
	rootCmd.AddCommand(newVersionCommand(info))

	return rootCmd
}

// logger builds the process logger from the persistent flags.
func (g *globals) logger(stderr io.Writer) (zerolog.Logger, error) {
	levelName := g.logLevel
	if levelName == "" {
		levelName = os.Getenv(EnvLogLevel)
	}
	level := zerolog.InfoLevel
	if levelName != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(levelName))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", levelName, err)
		}
		level = parsed
	}

	out := stderr
	if g.logOut != nil {
		out = g.logOut
	} else if g.logFile != "" {
		f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		g.logOut = f
	}

	switch g.logFormat {
	case "json":
	case "console", "":
		out = zerolog.ConsoleWriter{Out: out, NoColor: g.logFile != ""}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", g.logFormat)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// loadConfig reads the config file for the selected project and applies the
// database password from the environment when set.
func (g *globals) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath, g.projectDir)
	if err != nil {
		return config.Config{}, err
	}
	if pw, ok := os.LookupEnv(config.EnvDatabasePassword); ok {
		cfg.Database.Password = pw
	}
	return cfg, nil
}

func (g *globals) commandRunner() cmdrunner.Runner {
	if g.runner != nil {
		return g.runner
	}
	return cmdrunner.New()
}

func (g *globals) privilegeGate() *privilege.Gate {
	if g.gate != nil {
		return g.gate
	}
	return privilege.NewGate()
}
