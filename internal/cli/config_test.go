package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConfigValue(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name      string
		key       string
		val       string
		wantErr   bool
		validator func(*config.Config) bool
	}{
		{
			name: "Set String",
			key:  "global.metrics_dir",
			val:  "quality",
			validator: func(c *config.Config) bool {
				return c.Global.MetricsDir == "quality"
			},
		},
		{
			name: "Set Float",
			key:  "thresholds.coverage_decrease",
			val:  "0.5",
			validator: func(c *config.Config) bool {
				return c.Thresholds.CoverageDecrease == 0.5
			},
		},
		{
			name: "Set Int",
			key:  "refactor.timeout_minutes",
			val:  "25",
			validator: func(c *config.Config) bool {
				return c.Refactor.TimeoutMinutes == 25
			},
		},
		{
			name: "Set Bool",
			key:  "cache.enabled",
			val:  "false",
			validator: func(c *config.Config) bool {
				return !c.Cache.Enabled
			},
		},
		{
			name: "Set Duration",
			key:  "tools.coverage_timeout",
			val:  "90s",
			validator: func(c *config.Config) bool {
				return c.Tools.CoverageTimeout == 90*time.Second
			},
		},
		{
			name: "Set List",
			key:  "global.targets",
			val:  "src, lib,,test",
			validator: func(c *config.Config) bool {
				return assert.ObjectsAreEqual([]string{"src", "lib", "test"}, c.Global.Targets)
			},
		},
		{
			name:    "Invalid Key",
			key:     "global.unknown_field",
			val:     "foo",
			wantErr: true,
		},
		{
			name:    "Invalid Type Match (Float expected)",
			key:     "thresholds.lint_error_increase",
			val:     "lots",
			wantErr: true,
		},
		{
			name:    "Invalid Type Match (Duration expected)",
			key:     "cache.ttl",
			val:     "60",
			wantErr: true,
		},
		{
			name:    "Invalid Type Match (Bool expected)",
			key:     "refactor.keep_backup",
			val:     "maybe",
			wantErr: true,
		},
		{
			name:    "Part is not a struct",
			key:     "global.targets.first",
			val:     "src",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setConfigValue(cfg, tt.key, tt.val)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.validator != nil {
					assert.True(t, tt.validator(cfg))
				}
			}
		})
	}
}

func TestConfigKeys(t *testing.T) {
	keys := configKeys(reflect.TypeOf(config.Config{}), "")
	assert.Contains(t, keys, "thresholds.coverage_decrease")
	assert.Contains(t, keys, "refactor.backup_prefix")
	assert.Contains(t, keys, "tools.exclude_dirs")
	assert.Contains(t, keys, "cache.ttl")
	assert.NotContains(t, keys, "thresholds")
}

func TestConfigSetWritesUserConfig(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	out, err := execute(t, "config", "set", "thresholds.lint_error_increase", "2", "-C", project)
	require.NoError(t, err)

	userPath, err := config.GetConfigPath()
	require.NoError(t, err)
	assert.Contains(t, out, userPath)

	cfg, path, err := config.Load("", project)
	require.NoError(t, err)
	assert.Equal(t, userPath, path)
	assert.Equal(t, float64(2), cfg.Thresholds.LintErrorIncrease)
}

func TestConfigSetUpdatesLoadedFile(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	projectFile := filepath.Join(project, config.ProjectFileName)
	require.NoError(t, os.WriteFile(projectFile, []byte("global:\n  targets: [app]\n"), 0644))

	_, err := execute(t, "config", "set", "refactor.keep_backup", "true", "-C", project)
	require.NoError(t, err)

	cfg, path, err := config.Load("", project)
	require.NoError(t, err)
	assert.Equal(t, projectFile, path)
	assert.True(t, cfg.Refactor.KeepBackup)
	assert.Equal(t, []string{"app"}, cfg.Global.Targets)
}

func TestConfigSetRejectsInvalidValues(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	_, err := execute(t, "config", "set", "refactor.timeout_minutes", "90", "-C", project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 1 and 60")

	userPath, err := config.GetConfigPath()
	require.NoError(t, err)
	_, err = os.Stat(userPath)
	assert.True(t, os.IsNotExist(err), "an invalid value must not be saved")
}

func TestConfigListDefaults(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	out, err := execute(t, "config", "list", "-C", project)
	require.NoError(t, err)
	assert.Contains(t, out, "# source: built-in defaults")
	assert.Contains(t, out, "metrics_dir: .metrics")
	assert.Contains(t, out, "backup_prefix: safe-refactor/backup")
}
