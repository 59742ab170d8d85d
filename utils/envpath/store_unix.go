//go:build !windows

package envpath

import (
	"os"
	"path/filepath"
)

const systemProfile = "/etc/profile.d/app-provisioner-path.sh"

// DefaultStore returns the system-wide profile snippet when elevated, the
// user's ~/.profile otherwise.
func DefaultStore(elevated bool) Store {
	if elevated {
		return ProfileStore{Path: systemProfile}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return ProfileStore{Path: filepath.Join(home, ".profile")}
}
