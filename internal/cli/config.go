package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mikematt33/qgate/internal/config"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Show or edit the qgate configuration.
Configuration is read from the first file found:
- the --config flag
- .qgate.yaml in the project root
- the user config: ~/.config/qgate/config.yaml on Linux,
  ~/Library/Application Support/qgate/config.yaml on macOS,
  %APPDATA%\qgate\config.yaml on Windows
- ~/.qgate.yaml`,
}

var setCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value using dot notation.
Lists are comma separated and durations use Go syntax (90s, 5m, 1h).
Examples:
  qgate config set thresholds.coverage_decrease 0.5
  qgate config set global.targets src,lib
  qgate config set refactor.timeout_minutes 20
  qgate config set tools.coverage_timeout 10m`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(setCmd)
	configCmd.AddCommand(listCmd)

	setCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) != 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return configKeys(reflect.TypeOf(config.Config{}), ""), cobra.ShellCompDirectiveNoFileComp
	}
}

// configKeys lists every settable dotted key of a config struct.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			keys = append(keys, configKeys(f.Type, prefix+name+".")...)
			continue
		}
		keys = append(keys, prefix+name)
	}
	return keys
}

// savePath is where config set writes: the file that was loaded, or the user config.
func savePath() (string, error) {
	if app.cfgPath != "" {
		return app.cfgPath, nil
	}
	return config.GetConfigPath()
}

func runList(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(app.cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	source := app.cfgPath
	if source == "" {
		source = "built-in defaults"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", source, data)
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	key, valStr := args[0], args[1]

	cfg := *app.cfg
	if err := setConfigValue(&cfg, key, valStr); err != nil {
		return fmt.Errorf("error setting value: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	path, err := savePath()
	if err != nil {
		return fmt.Errorf("error resolving config path: %w", err)
	}
	if err := config.Save(&cfg, path); err != nil {
		return err
	}
	*app.cfg = cfg
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration saved to %s\n", path)
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setConfigValue traverses the struct using reflection and sets the value
func setConfigValue(obj interface{}, path string, valStr string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(obj)

	// Ensure we have a pointer if we want to set it, or unwrap if it's an interface
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("field %s is not a struct", strings.Join(parts[:i], "."))
		}

		// Find field by yaml tag
		typ := v.Type()
		var fieldVal reflect.Value
		found := false

		for j := 0; j < typ.NumField(); j++ {
			field := typ.Field(j)
			cleanTag := strings.Split(field.Tag.Get("yaml"), ",")[0]
			if cleanTag == part {
				fieldVal = v.Field(j)
				found = true
				break
			}
		}

		if !found {
			// Fallback: try case-insensitive field name match
			fieldVal = v.FieldByNameFunc(func(n string) bool {
				return strings.EqualFold(n, part)
			})
			if !fieldVal.IsValid() {
				return fmt.Errorf("field '%s' not found", part)
			}
		}

		v = fieldVal
	}

	if !v.CanSet() {
		return fmt.Errorf("cannot set field %s", path)
	}

	if v.Type() == durationType {
		d, err := time.ParseDuration(valStr)
		if err != nil {
			return fmt.Errorf("invalid duration value: %s", valStr)
		}
		v.SetInt(int64(d))
		return nil
	}

	// Set value based on type
	switch v.Kind() {
	case reflect.String:
		v.SetString(valStr)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(valStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", valStr)
		}
		v.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return fmt.Errorf("invalid number value: %s", valStr)
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(valStr)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", valStr)
		}
		v.SetBool(b)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type for key %s", path)
		}
		var items []string
		for _, s := range strings.Split(valStr, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		v.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type %s for key %s", v.Kind(), path)
	}

	return nil
}
