package download

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

func TestTemplateResolveUsesNodePlatformNames(t *testing.T) {
	t.Parallel()

	tpl := Template{
		URL:         "https://nodejs.org/dist/v{version}/node-v{version}-{os}-{arch}.tar.gz",
		ChecksumURL: "https://nodejs.org/dist/v{version}/SHASUMS256.txt",
		Version:     "20.11.0",
		Kind:        TarGz,
	}
	art := tpl.Resolve("windows", "amd64")
	require.Equal(t, "https://nodejs.org/dist/v20.11.0/node-v20.11.0-win-x64.tar.gz", art.URL)
	require.Equal(t, "https://nodejs.org/dist/v20.11.0/SHASUMS256.txt", art.ChecksumURL)
	require.Equal(t, "node-v20.11.0-win-x64.tar.gz", art.Name())

	art = tpl.Resolve("linux", "arm64")
	require.Equal(t, "https://nodejs.org/dist/v20.11.0/node-v20.11.0-linux-arm64.tar.gz", art.URL)
}

func TestInstallTarGzVerifiesAndExtracts(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string]string{
		"node-v1-linux-x64/bin/node":    "#!/bin/sh\necho v1\n",
		"node-v1-linux-x64/include/x.h": "// header",
	})
	srv := serve(t, "node-v1-linux-x64.tar.gz", archive, checksum(archive))

	scratchRoot := t.TempDir()
	dest := filepath.Join(t.TempDir(), "node")
	inst, err := New(nil, WithTempRoot(scratchRoot)).Install(context.Background(), Artifact{
		URL:         srv.URL + "/node-v1-linux-x64.tar.gz",
		ChecksumURL: srv.URL + "/SHASUMS256.txt",
		Kind:        TarGz,
	}, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "bin"), inst.BinDir)
	require.False(t, inst.RequiresRestart)

	data, err := os.ReadFile(filepath.Join(dest, "bin", "node"))
	require.NoError(t, err)
	require.Contains(t, string(data), "echo v1")

	leftovers, err := os.ReadDir(scratchRoot)
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestInstallRejectsChecksumMismatch(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string]string{"pkg/bin/tool": "x"})
	srv := serve(t, "pkg.tar.gz", archive, strings.Repeat("0", 64))

	scratchRoot := t.TempDir()
	_, err := New(nil, WithTempRoot(scratchRoot)).Install(context.Background(), Artifact{
		URL:         srv.URL + "/pkg.tar.gz",
		ChecksumURL: srv.URL + "/SHASUMS256.txt",
		Kind:        TarGz,
	}, t.TempDir())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.True(t, failure.Is(err, failure.KindExecutionFailed))

	leftovers, err := os.ReadDir(scratchRoot)
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestInstallZipExtracts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("node-v1-win-x64/node.exe")
	require.NoError(t, err)
	_, err = w.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := serve(t, "node-v1-win-x64.zip", buf.Bytes(), "")
	dest := t.TempDir()
	inst, err := New(nil).Install(context.Background(), Artifact{
		URL:  srv.URL + "/node-v1-win-x64.zip",
		Kind: Zip,
	}, dest)
	require.NoError(t, err)
	require.Equal(t, dest, inst.BinDir)
	require.FileExists(t, filepath.Join(dest, "node.exe"))
}

func TestInstallMSIRequiresRestart(t *testing.T) {
	t.Parallel()

	srv := serve(t, "node.msi", []byte("msi"), "")
	var seen cmdrunner.Request
	runner := cmdrunner.RunnerFunc(func(_ context.Context, req cmdrunner.Request) (cmdrunner.Result, error) {
		seen = req
		return cmdrunner.Result{}, nil
	})

	inst, err := New(runner).Install(context.Background(), Artifact{URL: srv.URL + "/node.msi", Kind: MSI}, "")
	require.NoError(t, err)
	require.True(t, inst.RequiresRestart)
	require.Equal(t, "msiexec", seen.Command)
	require.Equal(t, []string{"/quiet", "/norestart"}, seen.Args[2:])
}

func TestInstallReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := New(nil).Install(context.Background(), Artifact{URL: srv.URL + "/missing.tar.gz", Kind: TarGz}, t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 404")
}

func TestEntryTargetRejectsTraversal(t *testing.T) {
	t.Parallel()

	_, _, err := entryTarget("/opt/node", "top/../../etc/passwd")
	require.Error(t, err)

	_, ok, err := entryTarget("/opt/node", "top/")
	require.NoError(t, err)
	require.False(t, ok)
}

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func serve(t *testing.T, name string, body []byte, sum string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/"+name, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/SHASUMS256.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, "%s  other.tar.gz\n%s  %s\n", strings.Repeat("f", 64), sum, name)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
