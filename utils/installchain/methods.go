package installchain

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/BrianJOC/app-provisioner/utils/download"
	"github.com/BrianJOC/app-provisioner/utils/envpath"
	"github.com/BrianJOC/app-provisioner/utils/failure"
	"github.com/BrianJOC/app-provisioner/utils/pkginstaller"
)

// PathEnsurer adds a directory to PATH.
type PathEnsurer interface {
	Ensure(ctx context.Context, dir string) error
}

var _ PathEnsurer = (*envpath.Manager)(nil)

// PackageManager installs through the system package manager.
type PackageManager struct {
	Installer *pkginstaller.Installer
	Packages  pkginstaller.Packages
	// BinDirs lists directories to add to PATH after a successful install.
	// It is evaluated after the install so it can discover versioned paths.
	BinDirs func() []string
	Path    PathEnsurer
}

func (m PackageManager) Name() string { return string(KindPackageManager) }

func (m PackageManager) Kind() MethodKind { return KindPackageManager }

func (m PackageManager) Available(context.Context) (bool, string) {
	if m.Installer == nil {
		return false, "package installer not configured"
	}
	return m.Installer.Available(m.Packages)
}

func (m PackageManager) Install(ctx context.Context) (Outcome, error) {
	if _, err := m.Installer.Ensure(ctx, m.Packages); err != nil {
		return Failed, err
	}
	if m.BinDirs != nil && m.Path != nil {
		for _, dir := range m.BinDirs() {
			if err := m.Path.Ensure(ctx, dir); err != nil {
				return Failed, fmt.Errorf("add %s to PATH: %w", dir, err)
			}
		}
	}
	return Succeeded, nil
}

// DirectDownload fetches an official artifact for the current platform.
type DirectDownload struct {
	Downloader *download.Downloader
	// Templates are keyed by GOOS; "*" applies to every other platform.
	Templates map[string]download.Template
	Dest      string
	Path      PathEnsurer
	GOOS      string
	GOARCH    string
}

func (m DirectDownload) Name() string { return string(KindDirectDownload) }

func (m DirectDownload) Kind() MethodKind { return KindDirectDownload }

func (m DirectDownload) Available(context.Context) (bool, string) {
	if m.Downloader == nil {
		return false, "downloader not configured"
	}
	if _, ok := m.template(); !ok {
		return false, fmt.Sprintf("no download published for %s/%s", m.goos(), m.goarch())
	}
	return true, ""
}

func (m DirectDownload) Install(ctx context.Context) (Outcome, error) {
	tpl, _ := m.template()
	art := tpl.Resolve(m.goos(), m.goarch())
	inst, err := m.Downloader.Install(ctx, art, m.Dest)
	if err != nil {
		return Failed, err
	}
	if inst.RequiresRestart {
		return SucceededRequiresRestart, nil
	}
	if m.Path != nil && inst.BinDir != "" {
		if err := m.Path.Ensure(ctx, inst.BinDir); err != nil {
			return Failed, fmt.Errorf("add %s to PATH: %w", inst.BinDir, err)
		}
	}
	return Succeeded, nil
}

func (m DirectDownload) template() (download.Template, bool) {
	if tpl, ok := m.Templates[m.goos()]; ok && tpl.URL != "" {
		return tpl, true
	}
	tpl, ok := m.Templates["*"]
	return tpl, ok && tpl.URL != ""
}

func (m DirectDownload) goos() string {
	if m.GOOS != "" {
		return m.GOOS
	}
	return runtime.GOOS
}

func (m DirectDownload) goarch() string {
	if m.GOARCH != "" {
		return m.GOARCH
	}
	return runtime.GOARCH
}

// ManualInstruction never installs anything; it carries the operator
// instructions into the chain's remediation.
type ManualInstruction struct {
	Dependency   string
	URL          string
	Instructions string
}

func (m ManualInstruction) Name() string { return string(KindManualInstruction) }

func (m ManualInstruction) Kind() MethodKind { return KindManualInstruction }

func (m ManualInstruction) Available(context.Context) (bool, string) { return true, "" }

func (m ManualInstruction) Install(context.Context) (Outcome, error) {
	text := m.Instructions
	if text == "" {
		text = fmt.Sprintf("Download and install %s manually", m.Dependency)
	}
	if m.URL != "" {
		text = fmt.Sprintf("%s from %s, then run the provisioner again.", text, m.URL)
	}
	return Failed, failure.New(failure.KindManualActionRequired, "manual install", errors.New("automatic installation not possible")).
		WithRemediation(text)
}
