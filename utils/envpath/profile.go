package envpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	blockStart = "# >>> app-provisioner PATH >>>"
	blockEnd   = "# <<< app-provisioner PATH <<<"
)

// ProfileStore keeps PATH exports in a managed block of a shell profile.
type ProfileStore struct {
	Path string
}

// Location implements Store.
func (p ProfileStore) Location() string {
	return p.Path
}

// Add implements Store. It returns false when dir is already exported.
func (p ProfileStore) Add(dir string) (bool, error) {
	if p.Path == "" {
		return false, errors.New("profile path is required")
	}
	existing, err := os.ReadFile(p.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read profile: %w", err)
	}

	line := fmt.Sprintf("export PATH=%q:\"$PATH\"", dir)
	content := string(existing)
	if strings.Contains(content, line) {
		return false, nil
	}

	start := strings.Index(content, blockStart)
	end := strings.Index(content, blockEnd)
	switch {
	case start >= 0 && end > start:
		content = content[:end] + line + "\n" + content[end:]
	default:
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += blockStart + "\n" + line + "\n" + blockEnd + "\n"
	}

	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return false, fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(p.Path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write profile: %w", err)
	}
	return true, nil
}
