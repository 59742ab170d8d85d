// Package appstack assembles the provisioning phases for a Node.js
// application backed by PostgreSQL.
package appstack

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/appcmd"
	"github.com/BrianJOC/app-provisioner/phases/appdeps"
	"github.com/BrianJOC/app-provisioner/phases/database"
	"github.com/BrianJOC/app-provisioner/phases/depensure"
	"github.com/BrianJOC/app-provisioner/phases/envconfig"
	"github.com/BrianJOC/app-provisioner/phases/launch"
	"github.com/BrianJOC/app-provisioner/phases/verifystartup"
	"github.com/BrianJOC/app-provisioner/pkg/config"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/dbclient"
	"github.com/BrianJOC/app-provisioner/utils/download"
	"github.com/BrianJOC/app-provisioner/utils/envpath"
	"github.com/BrianJOC/app-provisioner/utils/installchain"
	"github.com/BrianJOC/app-provisioner/utils/pkginstaller"
	"github.com/BrianJOC/app-provisioner/utils/probe"
)

const (
	nodeDownloadPage     = "https://nodejs.org/en/download"
	postgresDownloadPage = "https://www.postgresql.org/download/"
)

// Deps are the collaborators shared by every phase.
type Deps struct {
	Runner cmdrunner.Runner
	// Output receives streamed child output.
	Output cmdrunner.LineFunc
	// Prompt answers the database password re-prompt. Nil disables it.
	Prompt   phases.InputHandler
	Elevated bool
	GOOS     string
	GOARCH   string
	// Path overrides the PATH manager (for tests).
	Path installchain.PathEnsurer
}

func (d Deps) goos() string {
	if d.GOOS != "" {
		return d.GOOS
	}
	return runtime.GOOS
}

func (d Deps) goarch() string {
	if d.GOARCH != "" {
		return d.GOARCH
	}
	return runtime.GOARCH
}

func (d Deps) path() installchain.PathEnsurer {
	if d.Path != nil {
		return d.Path
	}
	return envpath.New(d.Elevated)
}

// Dependencies lists the tools the bundle installs, in phase order.
func Dependencies() []probe.Dependency {
	return []probe.Dependency{probe.Node, probe.Postgres}
}

// Bundle returns the provisioning phases in execution order.
func Bundle(cfg config.Config, deps Deps) ([]phases.Phase, error) {
	if deps.Runner == nil {
		return nil, phases.ValidationError{Reason: "command runner is required"}
	}
	installer, err := pkginstaller.New(deps.Runner,
		pkginstaller.WithGOOS(deps.goos()),
		pkginstaller.WithStream(deps.Output),
	)
	if err != nil {
		return nil, err
	}
	pathMgr := deps.path()
	prober := probe.New(deps.Runner)
	downloader := download.New(deps.Runner)

	creds := dbclient.Credentials{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
	}
	cmds := cfg.Project.Commands
	dir := cfg.Project.Dir

	return phasedapp.NewBuilder().
		AddPhase(depensure.NewRuntime(prober, NodeChain(cfg, deps, installer, downloader, pathMgr))).
		AddPhase(depensure.NewDatabaseEngine(prober, PostgresChain(deps, installer, pathMgr))).
		AddPhase(appdeps.New(deps.Runner, dir, appdeps.Commands{
			InstallClean: cmds.InstallClean,
			Install:      cmds.Install,
			List:         cmds.ListDeps,
		}, deps.Output)).
		AddPhase(database.New(dbclient.New(deps.Runner), creds,
			database.WithPrompt(deps.Prompt),
			database.WithReadyTimeout(cfg.Database.ReadyTimeout),
		)).
		AddPhase(envconfig.New(creds, envconfig.Settings{
			Path:           cfg.EnvFilePath(),
			Port:           cfg.App.Port,
			Mode:           cfg.App.Mode,
			PreserveSecret: cfg.App.SecretPolicy == config.SecretPreserve,
		})).
		AddPhase(appcmd.NewMigrations(deps.Runner, dir, cmds.Migrate, deps.Output)).
		AddPhase(appcmd.NewBuild(deps.Runner, dir, cmds.Build, deps.Output)).
		AddPhase(verifystartup.New(deps.Runner, verifystartup.Settings{
			Dir:      dir,
			DevArgv:  cmds.StartDev,
			ProdArgv: cmds.StartProd,
			Port:     cfg.App.Port,
			Wait:     cfg.App.StartupWait,
		}, deps.Output)).
		AddPhase(launch.New(deps.Runner, launch.Settings{
			Dir:      dir,
			Title:    projectTitle(dir),
			URL:      cfg.URL(),
			Port:     cfg.App.Port,
			DevArgv:  cmds.StartDev,
			ProdArgv: cmds.StartProd,
			Policy:   launch.StartPolicy(cfg.App.Start),
			GOOS:     deps.goos(),
		}, deps.Output)).
		Build()
}

// NodeChain installs node and npm: package manager, then the official
// archive or installer, then manual instructions.
func NodeChain(cfg config.Config, deps Deps, installer *pkginstaller.Installer, downloader *download.Downloader, path installchain.PathEnsurer) installchain.Chain {
	version := cfg.Runtime.Version
	return installchain.Chain{
		Dependency: probe.Node.Name,
		Methods: []installchain.Method{
			installchain.PackageManager{
				Installer: installer,
				Packages: pkginstaller.Packages{
					pkginstaller.Winget: {"OpenJS.NodeJS.LTS"},
					pkginstaller.Brew:   {"node"},
					pkginstaller.AptGet: {"nodejs", "npm"},
					pkginstaller.Dnf:    {"nodejs", "npm"},
					pkginstaller.Yum:    {"nodejs", "npm"},
					pkginstaller.Zypper: {"nodejs", "npm"},
				},
				BinDirs: func() []string { return nodeBinDirs(deps.goos()) },
				Path:    path,
			},
			installchain.DirectDownload{
				Downloader: downloader,
				Templates: map[string]download.Template{
					"windows": {
						URL:     "https://nodejs.org/dist/v{version}/node-v{version}-{arch}.msi",
						Version: version,
						Kind:    download.MSI,
					},
					"*": {
						URL:         "https://nodejs.org/dist/v{version}/node-v{version}-{os}-{arch}.tar.gz",
						ChecksumURL: "https://nodejs.org/dist/v{version}/SHASUMS256.txt",
						Version:     version,
						Kind:        download.TarGz,
					},
				},
				Dest:   filepath.Join(cfg.Runtime.InstallRoot, "node-v"+version),
				Path:   path,
				GOOS:   deps.goos(),
				GOARCH: deps.goarch(),
			},
			installchain.ManualInstruction{
				Dependency:   "Node.js",
				URL:          nodeDownloadPage,
				Instructions: "Install the LTS release, then open a new terminal and run the provisioner again.",
			},
		},
	}
}

// PostgresChain installs the PostgreSQL server and client. There is no
// portable archive, so the chain ends with manual instructions.
func PostgresChain(deps Deps, installer *pkginstaller.Installer, path installchain.PathEnsurer) installchain.Chain {
	return installchain.Chain{
		Dependency: probe.Postgres.Name,
		Methods: []installchain.Method{
			installchain.PackageManager{
				Installer: installer,
				Packages: pkginstaller.Packages{
					pkginstaller.Winget: {"PostgreSQL.PostgreSQL.16"},
					pkginstaller.Brew:   {"postgresql@16"},
					pkginstaller.AptGet: {"postgresql", "postgresql-client"},
					pkginstaller.Dnf:    {"postgresql-server", "postgresql"},
					pkginstaller.Yum:    {"postgresql-server", "postgresql"},
					pkginstaller.Zypper: {"postgresql-server", "postgresql"},
				},
				BinDirs: func() []string { return postgresBinDirs(deps.goos()) },
				Path:    path,
			},
			installchain.ManualInstruction{
				Dependency:   "PostgreSQL",
				URL:          postgresDownloadPage,
				Instructions: "Install PostgreSQL 16, remember the password chosen for the postgres user, then run the provisioner again.",
			},
		},
	}
}

func nodeBinDirs(goos string) []string {
	if goos == "windows" {
		return existing(filepath.Join(os.Getenv("ProgramFiles"), "nodejs"))
	}
	return nil
}

func postgresBinDirs(goos string) []string {
	switch goos {
	case "windows":
		dir, err := dbclient.DiscoverBinDir(dbclient.WindowsBases(), "psql.exe")
		if err != nil {
			return nil
		}
		return []string{dir}
	case "darwin":
		// Homebrew installs versioned formulae keg-only.
		return existing("/opt/homebrew/opt/postgresql@16/bin", "/usr/local/opt/postgresql@16/bin")
	}
	return nil
}

func existing(dirs ...string) []string {
	var out []string
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}

func projectTitle(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}
