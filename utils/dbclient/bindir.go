package dbclient

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoBinDir reports that no PostgreSQL installation was found.
var ErrNoBinDir = errors.New("no PostgreSQL bin directory found")

// DiscoverBinDir looks for <base>/<version>/bin/<exe> under each base and
// returns the newest version found.
func DiscoverBinDir(bases []string, exe string) (string, error) {
	for _, base := range bases {
		if base == "" {
			continue
		}
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		versions := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				versions = append(versions, e.Name())
			}
		}
		sort.Slice(versions, func(i, j int) bool {
			return versionLess(versions[j], versions[i])
		})
		for _, v := range versions {
			bin := filepath.Join(base, v, "bin")
			if _, err := os.Stat(filepath.Join(bin, exe)); err == nil {
				return bin, nil
			}
		}
	}
	return "", ErrNoBinDir
}

// WindowsBases lists the default PostgreSQL install roots.
func WindowsBases() []string {
	var bases []string
	for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
		if root := os.Getenv(env); root != "" {
			bases = append(bases, filepath.Join(root, "PostgreSQL"))
		}
	}
	return bases
}

func versionLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA != nil || errB != nil {
			if pa[i] != pb[i] {
				return pa[i] < pb[i]
			}
			continue
		}
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}
