// Package config loads provisioner settings.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file, then command-line overrides applied by the caller. The result is
// validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project directory when no explicit
// config path is given.
const DefaultFileName = "provision.yaml"

// EnvDatabasePassword supplies the database password without writing it to
// the config file.
const EnvDatabasePassword = "PROVISION_DB_PASSWORD"

// Secret policies for SESSION_SECRET on re-runs.
const (
	SecretRegenerate = "regenerate"
	SecretPreserve   = "preserve"
)

// Config is the complete provisioner configuration.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Database DatabaseConfig `yaml:"database"`
	App      AppConfig      `yaml:"app"`
	Journal  JournalConfig  `yaml:"journal"`
}

// ProjectConfig locates the application and the commands that operate on it.
type ProjectConfig struct {
	Dir      string         `yaml:"dir" validate:"required"`
	EnvFile  string         `yaml:"env_file" validate:"required"`
	Commands CommandsConfig `yaml:"commands"`
}

// CommandsConfig holds argv lists; the first element is the binary.
type CommandsConfig struct {
	InstallClean []string `yaml:"install_clean" validate:"min=1"`
	Install      []string `yaml:"install" validate:"min=1"`
	ListDeps     []string `yaml:"list_deps" validate:"min=1"`
	Migrate      []string `yaml:"migrate" validate:"min=1"`
	Build        []string `yaml:"build" validate:"min=1"`
	StartDev     []string `yaml:"start_dev" validate:"min=1"`
	StartProd    []string `yaml:"start_prod" validate:"min=1"`
}

// RuntimeConfig pins the runtime version used by the direct download.
type RuntimeConfig struct {
	Version     string `yaml:"version" validate:"required"`
	InstallRoot string `yaml:"install_root" validate:"required"`
}

// DatabaseConfig holds the connection parameters. Password may be empty and
// is then prompted for.
type DatabaseConfig struct {
	Host         string        `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	User         string        `yaml:"user" validate:"required"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name" validate:"required"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" validate:"min=0"`
}

// AppConfig holds the application's runtime settings.
type AppConfig struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	Mode         string        `yaml:"mode" validate:"oneof=development production"`
	SecretPolicy string        `yaml:"secret_policy" validate:"oneof=regenerate preserve"`
	StartupWait  time.Duration `yaml:"startup_wait" validate:"min=0"`
	// Start decides whether the application is started after provisioning.
	Start string `yaml:"start" validate:"oneof=ask always never"`
}

// JournalConfig controls the run history database.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration for projectDir.
func Default(projectDir string) Config {
	if projectDir == "" {
		projectDir = "."
	}
	return Config{
		Project: ProjectConfig{
			Dir:     projectDir,
			EnvFile: ".env",
			Commands: CommandsConfig{
				InstallClean: []string{"npm", "ci"},
				Install:      []string{"npm", "install"},
				ListDeps:     []string{"npm", "ls", "--depth=0"},
				Migrate:      []string{"npm", "run", "db:push"},
				Build:        []string{"npm", "run", "build"},
				StartDev:     []string{"npm", "run", "dev"},
				StartProd:    []string{"npm", "run", "start"},
			},
		},
		Runtime: RuntimeConfig{
			Version:     "20.11.0",
			InstallRoot: defaultInstallRoot(),
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "postgres",
			Name:         "LMF",
			ReadyTimeout: 30 * time.Second,
		},
		App: AppConfig{
			Port:         5000,
			Mode:         "development",
			SecretPolicy: SecretRegenerate,
			StartupWait:  10 * time.Second,
			Start:        "ask",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    defaultJournalPath(),
		},
	}
}

// Load applies the YAML file at path over the defaults for projectDir. An
// empty path looks for DefaultFileName in projectDir and tolerates its
// absence; an explicit path must exist.
func Load(path, projectDir string) (Config, error) {
	cfg := Default(projectDir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.Project.Dir, DefaultFileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if projectDir != "" && cfg.Project.Dir == "" {
		cfg.Project.Dir = projectDir
	}
	return cfg, nil
}

// Validate checks struct constraints and returns a ValidationError listing
// every offending field.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return ValidationError{Fields: fields}
}

// EnvFilePath resolves the generated config path against the project dir.
func (c Config) EnvFilePath() string {
	if filepath.IsAbs(c.Project.EnvFile) {
		return c.Project.EnvFile
	}
	return filepath.Join(c.Project.Dir, c.Project.EnvFile)
}

// URL is where the application listens once started.
func (c Config) URL() string {
	return fmt.Sprintf("http://localhost:%d", c.App.Port)
}

// ValidationError lists invalid fields.
type ValidationError struct {
	Fields []string
}

func (e ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Fields, ", ")
}

func defaultInstallRoot() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".app-provisioner", "runtime")
	}
	return filepath.Join(os.TempDir(), "app-provisioner", "runtime")
}

func defaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "app-provisioner", "journal.db")
}
