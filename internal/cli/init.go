package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikematt33/qgate/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfig = `# qgate configuration

global:
  metrics_dir: ".metrics" # snapshots, reports and refactor logs live here
  targets: ["src"]        # directories analyzed by eslint, jscpd and the tech-debt scan
  output_mode: "text"

# Tolerated regression per metric family. 0 means any regression fails.
thresholds:
  coverage_decrease: 0     # percentage points
  duplication_increase: 0  # percentage points
  lint_error_increase: 0
  lint_warning_increase: 0 # warnings only fail in --strict mode
  security_increase: 0
  tech_debt_increase: 0
  outdated_increase: 0

# Command lines used by the analyzers. Targets and output flags are appended.
tools:
  eslint: "npx eslint"
  jscpd: "npx jscpd"
  coverage: "npx jest --coverage --coverageReporters=json-summary --coverageReporters=text-summary"
  audit: "npm audit --json"
  outdated: "npm outdated --json"
  coverage_timeout: 5m
  tech_debt_extensions: [".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".vue"]
  exclude_dirs: ["node_modules", "dist", "build", "coverage", ".git"]

refactor:
  timeout_minutes: 10 # 1-60
  lint_command: "npm run --if-present lint"
  typecheck_command: "npm run --if-present typecheck"
  test_command: "npm test"
  validation_timeout: 10m
  backup_prefix: "safe-refactor/backup"
  log_dir: ".metrics/logs"
  keep_backup: false

cache:
  enabled: true
  ttl: 1h
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Creates a default .qgate.yaml in the project root, or in your user
configuration directory with --global. An existing file is never overwritten.

qgate runs with built-in defaults when no configuration exists; 'qgate init' is
useful to review and tune thresholds and tool commands.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var flagInitGlobal bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&flagInitGlobal, "global", false, "Write the user-level config instead of the project file")
}

// createDefaultConfig writes the default configuration to the specified path
func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfig), 0644)
}

func initPath() (string, error) {
	if flagInitGlobal {
		return config.GetConfigPath()
	}
	root, err := resolveRoot()
	if err != nil {
		return "", err
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(root, config.ProjectFileName), nil
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, err := initPath()
	if err != nil {
		return fmt.Errorf("error getting config path: %w", err)
	}

	out := cmd.OutOrStdout()
	// Check if file already exists to prevent overwriting
	if _, err := os.Stat(configPath); err == nil {
		_, _ = fmt.Fprintf(out, "⚠️  Checking %s... already exists.\n", configPath)
		_, _ = fmt.Fprintln(out, "Aborting to prevent overwrite. Delete the existing file first if you want to regenerate it.")
		return nil
	}

	if err := createDefaultConfig(configPath); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Successfully created %s\n", configPath)
	_, _ = fmt.Fprintln(out, "You can now edit this file to configure thresholds and tool commands.")
	return nil
}
