package download

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// extractTarGz unpacks src into dest, dropping the archive's top-level
// directory the way release tarballs are laid out.
func extractTarGz(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		target, ok, err := entryTarget(dest, header.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) || escapes(dest, filepath.Join(filepath.Dir(target), header.Linkname)) {
				return fmt.Errorf("invalid symlink in archive: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		}
	}
}

// extractZip unpacks src into dest, dropping the top-level directory.
func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for _, entry := range zr.File {
		target, ok, err := entryTarget(dest, entry.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", entry.Name, err)
		}
		err = writeFile(target, rc, entry.Mode().Perm()|0o200)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// entryTarget maps an archive entry to its destination. Entries that are only
// the top-level directory are skipped.
func entryTarget(dest, name string) (string, bool, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	parts := strings.SplitN(strings.TrimPrefix(name, "./"), "/", 2)
	if len(parts) < 2 || strings.Trim(parts[1], "/") == "" {
		return "", false, nil
	}
	target := filepath.Join(dest, filepath.Clean(filepath.FromSlash(parts[1])))
	if escapes(dest, target) {
		return "", false, fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, true, nil
}

func escapes(dest, target string) bool {
	cleanDest := filepath.Clean(dest)
	if target == cleanDest {
		return false
	}
	return !strings.HasPrefix(target, cleanDest+string(filepath.Separator))
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}
