package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikematt33/qgate/internal/refactor"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// sandbox points every user-level directory into a temp dir and returns an
// empty Node.js project root.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	project := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(project, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "package.json"), []byte(`{"name":"demo"}`), 0644))
	return project
}

// useRunner installs a scripted runner for the duration of the test.
func useRunner(t *testing.T, r toolchain.Runner) {
	t.Helper()
	origRunner, origConfirmer := newRunner, newConfirmer
	newRunner = func() toolchain.Runner { return r }
	newConfirmer = func() refactor.Confirmer { return nil }
	t.Cleanup(func() {
		newRunner, newConfirmer = origRunner, origConfirmer
	})
}

// execute runs the root command and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	app = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if app != nil {
		_ = app.log.Close()
	}
	t.Logf("stderr:\n%s", errOut.String())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, models.ExitSuccess, ExitCode(nil))
	assert.Equal(t, models.ExitMetricsGate, ExitCode(exitWith(models.ExitMetricsGate, nil)))
	assert.Equal(t, models.ExitIOError, ExitCode(fmt.Errorf("wrapped: %w", exitWith(models.ExitIOError, errors.New("boom")))))
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(errors.New("plain")))

	assert.Equal(t, "exit status 4", exitWith(4, nil).Error())
	cause := errors.New("cause")
	err := exitWith(2, cause)
	assert.Equal(t, "cause", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestQuietAndVerboseAreExclusive(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	_, err := execute(t, "config", "list", "-C", project, "--quiet", "--verbose")
	assert.Error(t, err)
}

func TestProjectFlagMustExist(t *testing.T) {
	sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	_, err := execute(t, "measure", "-C", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(err))
}

func TestProjectConfigIsLoaded(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	require.NoError(t, os.WriteFile(filepath.Join(project, ".qgate.yaml"), []byte("global:\n  metrics_dir: quality\n"), 0644))

	out, err := execute(t, "config", "list", "-C", project)
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+filepath.Join(project, ".qgate.yaml"))
	assert.Contains(t, out, "metrics_dir: quality")
}

func TestInvalidConfigIsIOError(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	require.NoError(t, os.WriteFile(filepath.Join(project, ".qgate.yaml"), []byte("global: [not a map"), 0644))

	_, err := execute(t, "config", "list", "-C", project)
	require.Error(t, err)
	assert.Equal(t, models.ExitIOError, ExitCode(err))
}
