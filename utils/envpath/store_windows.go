//go:build windows

package envpath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const (
	systemEnvKey = `SYSTEM\CurrentControlSet\Control\Session Manager\Environment`
	userEnvKey   = `Environment`
)

// RegistryStore edits the Path value of an environment registry key.
type RegistryStore struct {
	Root registry.Key
	Key  string
}

// DefaultStore returns the machine environment when elevated, the user's
// otherwise.
func DefaultStore(elevated bool) Store {
	if elevated {
		return RegistryStore{Root: registry.LOCAL_MACHINE, Key: systemEnvKey}
	}
	return RegistryStore{Root: registry.CURRENT_USER, Key: userEnvKey}
}

// Location implements Store.
func (r RegistryStore) Location() string {
	root := `HKCU`
	if r.Root == registry.LOCAL_MACHINE {
		root = `HKLM`
	}
	return root + `\` + r.Key + `\Path`
}

// Add implements Store.
func (r RegistryStore) Add(dir string) (bool, error) {
	key, err := registry.OpenKey(r.Root, r.Key, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", r.Location(), err)
	}
	defer func() { _ = key.Close() }()

	current, _, err := key.GetStringValue("Path")
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", r.Location(), err)
	}
	for _, entry := range strings.Split(current, ";") {
		if strings.EqualFold(filepath.Clean(strings.TrimSpace(entry)), filepath.Clean(dir)) {
			return false, nil
		}
	}

	updated := dir
	if trimmed := strings.TrimRight(current, ";"); trimmed != "" {
		updated = trimmed + ";" + dir
	}
	if err := key.SetExpandStringValue("Path", updated); err != nil {
		return false, fmt.Errorf("write %s: %w", r.Location(), err)
	}
	return true, nil
}
