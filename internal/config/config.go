package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikematt33/qgate/pkg/models"
	yaml "gopkg.in/yaml.v3"
)

// ProjectFileName is the per-project config looked up in the project root.
const ProjectFileName = ".qgate.yaml"

type Config struct {
	Global     GlobalConfig      `yaml:"global"`
	Thresholds models.Thresholds `yaml:"thresholds"`
	Tools      ToolsConfig       `yaml:"tools"`
	Refactor   RefactorConfig    `yaml:"refactor"`
	Cache      CacheConfig       `yaml:"cache"`
}

type GlobalConfig struct {
	MetricsDir string   `yaml:"metrics_dir"`
	Targets    []string `yaml:"targets"`
	OutputMode string   `yaml:"output_mode,omitempty"` // text (default), json
}

// ToolsConfig holds the command lines used by the analyzers. Targets and
// output flags are appended by each analyzer.
type ToolsConfig struct {
	ESLint             string        `yaml:"eslint"`
	JSCPD              string        `yaml:"jscpd"`
	Coverage           string        `yaml:"coverage"`
	Audit              string        `yaml:"audit"`
	Outdated           string        `yaml:"outdated"`
	CoverageTimeout    time.Duration `yaml:"coverage_timeout"`
	TechDebtExtensions []string      `yaml:"tech_debt_extensions"`
	ExcludeDirs        []string      `yaml:"exclude_dirs"`
}

// Fingerprint identifies the tool commands and scan settings. Metrics
// collected under different fingerprints are not interchangeable.
func (t ToolsConfig) Fingerprint() string {
	data, err := yaml.Marshal(t)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", t))
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))[:16]
}

type RefactorConfig struct {
	TimeoutMinutes    int           `yaml:"timeout_minutes"`
	LintCommand       string        `yaml:"lint_command"`
	TypecheckCommand  string        `yaml:"typecheck_command"`
	TestCommand       string        `yaml:"test_command"`
	ValidationTimeout time.Duration `yaml:"validation_timeout"`
	BackupPrefix      string        `yaml:"backup_prefix"`
	LogDir            string        `yaml:"log_dir"`
	KeepBackup        bool          `yaml:"keep_backup"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Global: GlobalConfig{
			MetricsDir: ".metrics",
			Targets:    []string{"src"},
			OutputMode: "text",
		},
		Tools: ToolsConfig{
			ESLint:             "npx eslint",
			JSCPD:              "npx jscpd",
			Coverage:           "npx jest --coverage --coverageReporters=json-summary --coverageReporters=text-summary",
			Audit:              "npm audit --json",
			Outdated:           "npm outdated --json",
			CoverageTimeout:    300 * time.Second,
			TechDebtExtensions: []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".vue"},
			ExcludeDirs:        []string{"node_modules", "dist", "build", "coverage", ".git"},
		},
		Refactor: RefactorConfig{
			TimeoutMinutes:    10,
			LintCommand:       "npm run --if-present lint",
			TypecheckCommand:  "npm run --if-present typecheck",
			TestCommand:       "npm test",
			ValidationTimeout: 10 * time.Minute,
			BackupPrefix:      "safe-refactor/backup",
			LogDir:            filepath.Join(".metrics", "logs"),
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
	}
}

// Validate rejects values the tool cannot run with.
func (c *Config) Validate() error {
	if c.Global.MetricsDir == "" {
		return fmt.Errorf("global.metrics_dir must not be empty")
	}
	if len(c.Global.Targets) == 0 {
		return fmt.Errorf("global.targets must list at least one directory")
	}
	switch c.Global.OutputMode {
	case "", "text", "json":
	default:
		return fmt.Errorf("global.output_mode must be text or json, got %q", c.Global.OutputMode)
	}
	if c.Refactor.TimeoutMinutes < 1 || c.Refactor.TimeoutMinutes > 60 {
		return fmt.Errorf("refactor.timeout_minutes must be between 1 and 60, got %d", c.Refactor.TimeoutMinutes)
	}
	if c.Refactor.BackupPrefix == "" {
		return fmt.Errorf("refactor.backup_prefix must not be empty")
	}
	t := c.Thresholds
	for name, v := range map[string]float64{
		"coverage_decrease":     t.CoverageDecrease,
		"duplication_increase":  t.DuplicationIncrease,
		"lint_error_increase":   t.LintErrorIncrease,
		"lint_warning_increase": t.LintWarningIncrease,
		"security_increase":     t.SecurityIncrease,
		"tech_debt_increase":    t.TechDebtIncrease,
		"outdated_increase":     t.OutdatedIncrease,
	} {
		if v < 0 {
			return fmt.Errorf("thresholds.%s must not be negative", name)
		}
	}
	return nil
}

// GetConfigPath returns the user-level config file location.
func GetConfigPath() (string, error) {
	// Respect XDG_CONFIG_HOME if set (useful for testing and Linux users)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "qgate", "config.yaml"), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "qgate", "config.yaml"), nil
}

// SearchPaths lists candidate config files in priority order:
// the project file, the user config dir, then $HOME/.qgate.yaml.
func SearchPaths(projectRoot string) []string {
	var paths []string
	if projectRoot != "" {
		paths = append(paths, filepath.Join(projectRoot, ProjectFileName))
	}
	if p, err := GetConfigPath(); err == nil {
		paths = append(paths, p)
	}
	// Legacy fallback
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".qgate.yaml"))
	}
	return paths
}

// Load reads the first config file found, layered over the defaults.
// An explicit path must exist. The returned path is empty when only defaults apply.
func Load(explicit, projectRoot string) (*Config, string, error) {
	cfg := Default()

	if explicit != "" {
		if err := readInto(explicit, cfg); err != nil {
			return nil, "", err
		}
		return cfg, explicit, cfg.Validate()
	}

	for _, p := range SearchPaths(projectRoot) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := readInto(p, cfg); err != nil {
			return nil, "", err
		}
		return cfg, p, cfg.Validate()
	}

	return cfg, "", nil
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
