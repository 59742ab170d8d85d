package appdeps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/utils/cmdrunner"
	"github.com/BrianJOC/app-provisioner/utils/failure"
)

var commands = Commands{
	InstallClean: []string{"npm", "ci"},
	Install:      []string{"npm", "install"},
	List:         []string{"npm", "ls", "--depth=0"},
}

func project(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		path := filepath.Join(dir, f)
		if strings.HasSuffix(f, "/") {
			require.NoError(t, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	}
	return dir
}

func TestCheckRequiresManifest(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeRunner{}, project(t), commands, nil).Check(context.Background(), phases.NewContext())
	require.Error(t, err)
	require.Contains(t, failure.RemediationOf(err), "package.json")
	require.Contains(t, failure.RemediationOf(err), "--project (-p)")
}

func TestCheckUnsatisfiedWithoutModules(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	res, err := New(r, project(t, "package.json"), commands, nil).Check(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.False(t, res.Satisfied)
	require.Empty(t, r.seen)
}

func TestCheckSatisfiedWhenTreeMatches(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "npm ls"}}}
	res, err := New(r, project(t, "package.json", "node_modules/"), commands, nil).Check(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.True(t, res.Satisfied)
}

func TestCheckUnsatisfiedWhenListFails(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "npm ls", exitCode: 1}}}
	res, err := New(r, project(t, "package.json", "node_modules/"), commands, nil).Check(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.False(t, res.Satisfied)
}

func TestRunUsesCleanInstallWithLockfile(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "npm ci"}}}
	detail, err := New(r, project(t, "package.json", "package-lock.json"), commands, nil).Run(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.Equal(t, "installed with npm ci", detail)
	require.Equal(t, []string{"npm ci"}, r.seen)
}

func TestRunFallsBackToInstallWithoutLockfile(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "npm install"}}}
	_, err := New(r, project(t, "package.json"), commands, nil).Run(context.Background(), phases.NewContext())
	require.NoError(t, err)
	require.Equal(t, []string{"npm install"}, r.seen)
}

func TestRunFailureCarriesBuildToolsHint(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{
		match: "npm install",
		err:   failure.New(failure.KindExecutionFailed, "npm install", errors.New("exit status 1")).WithStderr("gyp ERR! build error"),
	}}}
	phase := New(r, project(t, "package.json"), commands, nil)
	_, err := phase.Run(context.Background(), phases.NewContext())
	require.Error(t, err)
	require.True(t, phase.Metadata().Fatal)
	require.Contains(t, failure.RemediationOf(err), "C++ build tools")
}

type fakeRunner struct {
	responses []fakeResponse
	seen      []string
}

type fakeResponse struct {
	match    string
	exitCode int
	err      error
}

func (f *fakeRunner) Execute(_ context.Context, req cmdrunner.Request) (cmdrunner.Result, error) {
	cmd := strings.TrimSpace(req.Command + " " + strings.Join(req.Args, " "))
	f.seen = append(f.seen, cmd)
	if len(f.responses) == 0 {
		return cmdrunner.Result{}, fmt.Errorf("unexpected command: %s", cmd)
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	if resp.match != "" && !strings.Contains(cmd, resp.match) {
		return cmdrunner.Result{}, fmt.Errorf("unexpected command %q; expected substring %q", cmd, resp.match)
	}
	return cmdrunner.Result{ExitCode: resp.exitCode}, resp.err
}
