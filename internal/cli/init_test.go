package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCmd(t *testing.T) {
	project := sandbox(t)

	out, err := execute(t, "init", "-C", project)
	require.NoError(t, err)

	configPath := filepath.Join(project, config.ProjectFileName)
	assert.Contains(t, out, "Successfully created "+configPath)

	// The generated file documents the defaults; loading it changes nothing.
	cfg, path, err := config.Load("", project)
	require.NoError(t, err)
	assert.Equal(t, configPath, path)
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("generated config differs from defaults (-want +got):\n%s", diff)
	}

	// Run init again: the existing file must be left alone
	require.NoError(t, os.WriteFile(configPath, []byte("# edited\n"), 0644))
	out, err = execute(t, "init", "-C", project)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "# edited\n", string(content))
}

func TestInitGlobal(t *testing.T) {
	project := sandbox(t)

	_, err := execute(t, "init", "--global", "-C", project)
	require.NoError(t, err)

	userPath, err := config.GetConfigPath()
	require.NoError(t, err)
	_, err = os.Stat(userPath)
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(project, config.ProjectFileName))
	assert.True(t, os.IsNotExist(err))
}
