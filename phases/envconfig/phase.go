// Package envconfig provides the phase that writes the application's
// generated environment file.
package envconfig

import (
	"context"
	"fmt"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/phases/database"
	"github.com/BrianJOC/app-provisioner/utils/dbclient"
	"github.com/BrianJOC/app-provisioner/utils/envfile"
)

const (
	phaseID = "environment"
	// ContextKeyConfig holds the envfile.GeneratedConfig that was written.
	ContextKeyConfig = "environment:config"
)

// Settings controls what gets written.
type Settings struct {
	Path string
	Port int
	Mode string
	// PreserveSecret reuses a valid SESSION_SECRET from an existing file.
	PreserveSecret bool
}

// Phase materializes and persists the generated configuration.
type Phase struct {
	creds        dbclient.Credentials
	settings     Settings
	materializer *envfile.Materializer
}

// New creates the environment phase. creds are used when the database phase
// did not record corrected ones.
func New(creds dbclient.Credentials, settings Settings) *Phase {
	return &Phase{creds: creds, settings: settings, materializer: envfile.NewMaterializer(nil)}
}

// WithMaterializer allows providing a deterministic materializer (for tests).
func (p *Phase) WithMaterializer(m *envfile.Materializer) *Phase {
	if m != nil {
		p.materializer = m
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		ID:          phaseID,
		Title:       "Write environment file",
		Description: "Generate the connection URL and session secret and write " + p.settings.Path + ".",
		Fatal:       true,
		Tags:        []string{"config"},
	}
}

// Check is only satisfied under the preserve policy, when the existing file
// already matches what would be written.
func (p *Phase) Check(_ context.Context, phaseCtx *phases.Context) (phases.Probe, error) {
	if !p.settings.PreserveSecret {
		return phases.Probe{Detail: "session secret is regenerated on every run"}, nil
	}
	existing, err := envfile.Load(p.settings.Path)
	if err != nil {
		return phases.Probe{}, nil
	}
	creds := database.Credentials(phaseCtx, p.creds)
	if existing.ConnectionURL != envfile.ConnectionURL(creds) ||
		existing.Port != p.settings.Port ||
		existing.Mode != p.settings.Mode ||
		!envfile.ValidSecret(existing.SessionSecret) {
		return phases.Probe{}, nil
	}
	phaseCtx.Set(ContextKeyConfig, existing)
	return phases.Probe{Satisfied: true, Detail: p.settings.Path + " is up to date"}, nil
}

func (p *Phase) Run(_ context.Context, phaseCtx *phases.Context) (string, error) {
	settings := envfile.Settings{Port: p.settings.Port, Mode: p.settings.Mode}
	secretNote := "new session secret"
	if p.settings.PreserveSecret {
		if existing, err := envfile.Load(p.settings.Path); err == nil && envfile.ValidSecret(existing.SessionSecret) {
			settings.Secret = existing.SessionSecret
			secretNote = "session secret preserved"
		}
	}

	cfg, err := p.materializer.Materialize(database.Credentials(phaseCtx, p.creds), settings)
	if err != nil {
		return "", err
	}
	if err := envfile.Persist(cfg, p.settings.Path); err != nil {
		return "", fmt.Errorf("failed to write environment file: %w", err)
	}
	phaseCtx.Set(ContextKeyConfig, cfg)
	return fmt.Sprintf("wrote %s (%s)", p.settings.Path, secretNote), nil
}

// Overlay returns the generated values as a child-process environment with
// MODE set to mode. It is empty when no configuration was generated.
func Overlay(phaseCtx *phases.Context, mode string) map[string]string {
	overlay := map[string]string{}
	if cfg, ok := phases.Value[envfile.GeneratedConfig](phaseCtx, ContextKeyConfig); ok {
		overlay = cfg.Values()
	}
	if mode != "" {
		overlay[envfile.KeyMode] = mode
	}
	return overlay
}
