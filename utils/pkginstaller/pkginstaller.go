// Package pkginstaller installs packages through the first supported system
// package manager found on the local machine.
package pkginstaller

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Manager identifies a package manager binary.
type Manager string

const (
	Winget Manager = "winget"
	Brew   Manager = "brew"
	AptGet Manager = "apt-get"
	Yum    Manager = "yum"
	Dnf    Manager = "dnf"
	Zypper Manager = "zypper"
)

// Packages maps each manager to the package identifiers it should install.
type Packages map[Manager][]string

// Result reports actions taken by Installer.
type Result struct {
	Manager   Manager
	Packages  []string
	Installed bool
	Skipped   bool
}

// Option configures Installer behavior.
type Option func(*Installer) error

// WithCustomCheck skips installation when the given binary already resolves.
func WithCustomCheck(binary string) Option {
	return func(i *Installer) error {
		binary = strings.TrimSpace(binary)
		if binary == "" {
			return OptionError{Reason: "custom check binary must not be empty"}
		}
		i.checkBinary = binary
		return nil
	}
}

// WithGOOS overrides the platform used to order managers.
func WithGOOS(goos string) Option {
	return func(i *Installer) error {
		if goos == "" {
			return OptionError{Reason: "goos must not be empty"}
		}
		i.goos = goos
		return nil
	}
}

// WithLookPath overrides binary detection (useful for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(i *Installer) error {
		if fn == nil {
			return OptionError{Reason: "lookPath must not be nil"}
		}
		i.lookPath = fn
		return nil
	}
}

// WithStream forwards package manager output line by line.
func WithStream(fn cmdrunner.LineFunc) Option {
	return func(i *Installer) error {
		i.stream = fn
		return nil
	}
}

// Installer drives a system package manager.
type Installer struct {
	runner      cmdrunner.Runner
	goos        string
	lookPath    func(string) (string, error)
	checkBinary string
	stream      cmdrunner.LineFunc
}

// New constructs an Installer.
func New(r cmdrunner.Runner, opts ...Option) (*Installer, error) {
	if r == nil {
		return nil, RunnerError{}
	}
	i := &Installer{
		runner:   r,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// Candidates lists managers in preference order for the platform.
func Candidates(goos string) []Manager {
	switch goos {
	case "windows":
		return []Manager{Winget}
	case "darwin":
		return []Manager{Brew}
	default:
		return []Manager{AptGet, Yum, Dnf, Zypper}
	}
}

// Detect returns the first manager whose binary is present.
func (i *Installer) Detect() (Manager, bool) {
	for _, m := range Candidates(i.goos) {
		if _, err := i.lookPath(string(m)); err == nil {
			return m, true
		}
	}
	return "", false
}

// Available reports whether pkgs can be installed here, with a reason if not.
func (i *Installer) Available(pkgs Packages) (bool, string) {
	m, ok := i.Detect()
	if !ok {
		return false, "no supported package manager found"
	}
	if len(pkgs[m]) == 0 {
		return false, fmt.Sprintf("no package mapping for %s", m)
	}
	return true, ""
}

// Ensure installs pkgs with the detected manager unless the check binary is
// already present.
func (i *Installer) Ensure(ctx context.Context, pkgs Packages) (*Result, error) {
	if i.checkBinary != "" {
		if _, err := i.lookPath(i.checkBinary); err == nil {
			return &Result{Skipped: true}, nil
		}
	}

	m, ok := i.Detect()
	if !ok {
		return nil, failure.New(failure.KindMethodUnavailable, "package manager", fmt.Errorf("no supported package manager found"))
	}
	names := pkgs[m]
	if len(names) == 0 {
		return nil, ValidationError{Reason: fmt.Sprintf("no packages mapped for %s", m)}
	}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, ValidationError{Reason: "package name is required"}
		}
	}

	logger := zerolog.Ctx(ctx).With().Str("method", "package_manager").Str("manager", string(m)).Logger()
	for _, req := range buildInstallRequests(m, names) {
		req.Stream = i.stream
		req.Check = true
		logger.Info().Str("command", req.Command).Strs("args", req.Args).Msg("running package manager")
		res, err := i.runner.Execute(ctx, req)
		if err != nil {
			return nil, CommandError{Manager: m, Action: action(req.Args), Err: err, Stderr: res.Stderr}
		}
	}

	return &Result{Manager: m, Packages: names, Installed: true}, nil
}

func buildInstallRequests(m Manager, names []string) []cmdrunner.Request {
	switch m {
	case Winget:
		reqs := make([]cmdrunner.Request, 0, len(names))
		for _, id := range names {
			reqs = append(reqs, cmdrunner.Request{
				Command: string(Winget),
				Args: []string{
					"install", "-e", "--id", id,
					"--accept-source-agreements", "--accept-package-agreements", "--silent",
				},
			})
		}
		return reqs
	case Brew:
		return []cmdrunner.Request{{Command: string(Brew), Args: append([]string{"install"}, names...)}}
	case AptGet:
		env := map[string]string{"DEBIAN_FRONTEND": "noninteractive"}
		return []cmdrunner.Request{
			{Command: string(AptGet), Args: []string{"update", "-y"}, Env: env},
			{Command: string(AptGet), Args: append([]string{"install", "-y"}, names...), Env: env},
		}
	case Yum, Dnf:
		return []cmdrunner.Request{{Command: string(m), Args: append([]string{"install", "-y"}, names...)}}
	case Zypper:
		return []cmdrunner.Request{{Command: string(Zypper), Args: append([]string{"--non-interactive", "install", "-y"}, names...)}}
	default:
		return nil
	}
}

// action is the first argument that is not a flag, e.g. "install".
func action(args []string) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return ""
}
