package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/tvarr-replay/internal/config"
	"github.com/jmylchreest/tvarr-replay/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing tvarr-replay configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  tvarr-replay config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml under ., ./configs, /etc/tvarr-replay, $HOME/.tvarr-replay)
  - Environment variables (TVARR_REPLAY_SERVER_ADDR, TVARR_REPLAY_CATALOG_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the TVARR_REPLAY_ prefix and underscores for nesting.
Example: server.addr -> TVARR_REPLAY_SERVER_ADDR`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and byte sizes for
// human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# tvarr-replay Configuration File")
	fmt.Println("# ================================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   TVARR_REPLAY_SERVER_ADDR, TVARR_REPLAY_SERVER_CORS_ORIGINS")
	fmt.Println("#   TVARR_REPLAY_CATALOG_DRIVER, TVARR_REPLAY_CATALOG_DSN")
	fmt.Println("#   TVARR_REPLAY_REPLAY_CODEC, TVARR_REPLAY_REPLAY_DISK_WARN_THRESHOLD")
	fmt.Println("#   TVARR_REPLAY_LOGGING_LEVEL, TVARR_REPLAY_LOGGING_FORMAT")
	fmt.Println("#   TVARR_REPLAY_SCHEDULER_RECONCILE_INTERVAL, TVARR_REPLAY_SCHEDULER_PRUNE_SCHEDULE")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
