// Package envpath adds directories to the persistent user/system PATH and
// mirrors the change into the running process so later probes see it.
package envpath

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Store persists a PATH entry for future sessions.
type Store interface {
	Add(dir string) (bool, error)
	Location() string
}

// Manager persists and mirrors PATH changes.
type Manager struct {
	store  Store
	getenv func(string) string
	setenv func(string, string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore overrides the persistent store.
func WithStore(s Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithEnv overrides process environment access (useful for tests).
func WithEnv(getenv func(string) string, setenv func(string, string) error) Option {
	return func(m *Manager) {
		if getenv != nil {
			m.getenv = getenv
		}
		if setenv != nil {
			m.setenv = setenv
		}
	}
}

// New constructs a Manager. elevated selects the machine-wide store.
func New(elevated bool, opts ...Option) *Manager {
	m := &Manager{
		store:  DefaultStore(elevated),
		getenv: os.Getenv,
		setenv: os.Setenv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Ensure adds dir to the persistent PATH and to the current process PATH.
// Persistence failures are logged; the process mirror is always applied.
func (m *Manager) Ensure(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)
	logger := zerolog.Ctx(ctx).With().Str("dir", dir).Logger()

	if m.store != nil {
		changed, err := m.store.Add(dir)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("store", m.store.Location()).Msg("failed to persist PATH entry")
		case changed:
			logger.Info().Str("store", m.store.Location()).Msg("persisted PATH entry")
		}
	}

	current := m.getenv("PATH")
	if Contains(current, dir) {
		return nil
	}
	updated := dir
	if current != "" {
		updated = dir + string(os.PathListSeparator) + current
	}
	return m.setenv("PATH", updated)
}

// Contains reports whether dir is an entry of pathValue.
func Contains(pathValue, dir string) bool {
	want := filepath.Clean(dir)
	for _, entry := range filepath.SplitList(pathValue) {
		if entry == "" {
			continue
		}
		got := filepath.Clean(entry)
		if runtime.GOOS == "windows" {
			if strings.EqualFold(got, want) {
				return true
			}
			continue
		}
		if got == want {
			return true
		}
	}
	return false
}
