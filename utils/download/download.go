// Package download fetches a runtime artifact over HTTP, verifies it and either
// extracts it into an install root or runs it as a platform installer.
package download

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

// Kind tells how a fetched artifact is applied.
type Kind string

const (
	TarGz Kind = "tar.gz"
	Zip   Kind = "zip"
	// MSI artifacts are run through msiexec and require a new session.
	MSI Kind = "msi"
)

// Template describes an artifact with {version}, {os} and {arch} placeholders.
type Template struct {
	URL         string
	ChecksumURL string
	Version     string
	Kind        Kind
}

// Artifact is a resolved download.
type Artifact struct {
	URL         string
	ChecksumURL string
	Kind        Kind
}

// Installation reports where an artifact ended up.
type Installation struct {
	Dir             string
	BinDir          string
	RequiresRestart bool
}

// Resolve substitutes placeholders for the given platform. Node style
// platform names are used (win, x64).
func (t Template) Resolve(goos, goarch string) Artifact {
	r := strings.NewReplacer(
		"{version}", t.Version,
		"{os}", platformOS(goos),
		"{arch}", platformArch(goarch),
	)
	return Artifact{
		URL:         r.Replace(t.URL),
		ChecksumURL: r.Replace(t.ChecksumURL),
		Kind:        t.Kind,
	}
}

// Name is the file name of the artifact.
func (a Artifact) Name() string {
	return path.Base(a.URL)
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithTempRoot sets where scratch directories are created.
func WithTempRoot(dir string) Option {
	return func(d *Downloader) {
		d.tempRoot = dir
	}
}

// Downloader fetches and applies artifacts.
type Downloader struct {
	client   *http.Client
	runner   cmdrunner.Runner
	tempRoot string
}

// New constructs a Downloader. The runner is used for installer artifacts.
func New(runner cmdrunner.Runner, opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{Timeout: 15 * time.Minute},
		runner: runner,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Install fetches art into a scratch directory, verifies its checksum when
// one is published and applies it to dest. The scratch directory is removed on
// every path.
func (d *Downloader) Install(ctx context.Context, art Artifact, dest string) (Installation, error) {
	logger := zerolog.Ctx(ctx).With().Str("method", "direct_download").Str("url", art.URL).Logger()

	scratch, err := os.MkdirTemp(d.tempRoot, "provision-download-*")
	if err != nil {
		return Installation{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn().Err(err).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	file := filepath.Join(scratch, art.Name())
	sum, err := d.fetch(ctx, art.URL, file)
	if err != nil {
		return Installation{}, failure.New(failure.KindExecutionFailed, "download "+art.Name(), err)
	}
	logger.Info().Str("sha256", sum).Msg("artifact downloaded")

	if art.ChecksumURL != "" {
		if err := d.verify(ctx, art, sum); err != nil {
			return Installation{}, failure.New(failure.KindExecutionFailed, "verify "+art.Name(), err)
		}
	}

	switch art.Kind {
	case TarGz:
		if err := extractTarGz(file, dest); err != nil {
			return Installation{}, failure.New(failure.KindExecutionFailed, "extract "+art.Name(), err)
		}
		return Installation{Dir: dest, BinDir: filepath.Join(dest, "bin")}, nil
	case Zip:
		if err := extractZip(file, dest); err != nil {
			return Installation{}, failure.New(failure.KindExecutionFailed, "extract "+art.Name(), err)
		}
		return Installation{Dir: dest, BinDir: dest}, nil
	case MSI:
		if d.runner == nil {
			return Installation{}, errors.New("runner is required for installer artifacts")
		}
		_, err := d.runner.Execute(ctx, cmdrunner.Request{
			Command: "msiexec",
			Args:    []string{"/i", file, "/quiet", "/norestart"},
			Check:   true,
		})
		if err != nil {
			return Installation{}, err
		}
		return Installation{RequiresRestart: true}, nil
	default:
		return Installation{}, fmt.Errorf("unsupported artifact kind %q", art.Kind)
	}
}

func (d *Downloader) fetch(ctx context.Context, url, target string) (string, error) {
	resp, err := d.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, hash), resp.Body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (d *Downloader) verify(ctx context.Context, art Artifact, sum string) error {
	resp, err := d.get(ctx, art.ChecksumURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	expected, err := lookupChecksum(resp.Body, art.Name())
	if err != nil {
		return err
	}
	if !strings.EqualFold(expected, sum) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, sum)
	}
	return nil
}

func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp, nil
}

// lookupChecksum finds name in a SHASUMS256.txt style listing.
func lookupChecksum(r io.Reader, name string) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") == name {
			return fields[0], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read checksums: %w", err)
	}
	return "", fmt.Errorf("%w: %s", ErrChecksumMissing, name)
}

// ErrChecksumMismatch reports a corrupted or tampered artifact.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrChecksumMissing reports that the listing does not cover the artifact.
var ErrChecksumMissing = errors.New("checksum not published")

func platformOS(goos string) string {
	if goos == "windows" {
		return "win"
	}
	return goos
}

func platformArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}
