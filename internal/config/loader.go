package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. VECSWEEP_TOKEN.
const EnvPrefix = "VECSWEEP"

// Loader handles loading configuration from files, environment and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// knownKeys lists every recognised setting. Anything else in a config file aborts startup.
var knownKeys = []string{
	"uri",
	"token",
	"collection_name",
	"vector_field",
	"dim",
	"topk",
	"conc_duration",
	"conc_intermission",
	"conc_list",
	"pool_size",
	"seed",
	"timeout",
	"check_response_code",
	"output",
	"log_level",
	"log_format",
	"log_errors",
	"metrics_addr",
	"tracing_endpoint",
	"tracing_protocol",
	"tracing_insecure",
	"tracing_sample_rate",
	"tracing_propagate",
	"tracing_service_name",
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the optional configuration file to
// produce a Config. Precedence: defaults, file, environment, flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath, err := resolveConfigPath(flagSet)
	if err != nil {
		return nil, err
	}

	cfgViper := viper.New()
	if configPath != "" {
		if err := readConfigFile(cfgViper, configPath); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}
	if unknown := unknownKeys(cfgViper.AllSettings()); len(unknown) > 0 {
		return nil, fmt.Errorf("config %s: unrecognized keys: %s", configPath, strings.Join(unknown, ", "))
	}

	cfgViper.SetEnvPrefix(EnvPrefix)
	for _, key := range knownKeys {
		if err := cfgViper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.URI = strings.TrimSpace(cfg.URI)
	cfg.Output = OutputFormat(strings.ToLower(string(cfg.Output)))
	return &cfg, nil
}

// resolveConfigPath accepts either the positional argument or --config, not both.
func resolveConfigPath(fs *pflag.FlagSet) (string, error) {
	configPath := strings.TrimSpace(fs.Lookup("config").Value.String())
	positional := fs.Args()
	switch {
	case len(positional) > 1:
		return "", fmt.Errorf("expected at most one config file argument, got %d", len(positional))
	case len(positional) == 1 && configPath != "":
		return "", errors.New("config file given both as argument and --config")
	case len(positional) == 1:
		return strings.TrimSpace(positional[0]), nil
	}
	return configPath, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if isLegacyFile(path) {
		settings, err := readLegacyFile(path)
		if err != nil {
			return err
		}
		return v.MergeConfigMap(settings)
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}

func unknownKeys(settings map[string]interface{}) []string {
	known := make(map[string]bool, len(knownKeys))
	for _, key := range knownKeys {
		known[key] = true
	}
	var unknown []string
	for key := range settings {
		if !known[strings.ToLower(key)] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		key string
		dst *string
	}{
		{"uri", &cfg.URI},
		{"token", &cfg.Token},
		{"collection_name", &cfg.CollectionName},
		{"vector_field", &cfg.VectorField},
		{"log_level", &cfg.LogLevel},
		{"log_format", &cfg.LogFormat},
		{"metrics_addr", &cfg.MetricsAddr},
		{"tracing_endpoint", &cfg.Tracing.Endpoint},
		{"tracing_protocol", &cfg.Tracing.Protocol},
		{"tracing_service_name", &cfg.Tracing.ServiceName},
	}
	for _, field := range stringFields {
		if raw, ok := lookupSetting(settings, field.key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.key, err)
			}
			*field.dst = strings.TrimSpace(val)
		}
	}

	intFields := []struct {
		key string
		dst *int
	}{
		{"dim", &cfg.Dim},
		{"topk", &cfg.TopK},
		{"pool_size", &cfg.PoolSize},
	}
	for _, field := range intFields {
		if raw, ok := lookupSetting(settings, field.key); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.key, err)
			}
			*field.dst = val
		}
	}

	boolFields := []struct {
		key string
		dst *bool
	}{
		{"check_response_code", &cfg.CheckResponseCode},
		{"log_errors", &cfg.LogErrors},
		{"tracing_insecure", &cfg.Tracing.Insecure},
		{"tracing_propagate", &cfg.Tracing.Propagate},
	}
	for _, field := range boolFields {
		if raw, ok := lookupSetting(settings, field.key); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.key, err)
			}
			*field.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "conc_duration"); ok {
		dur, err := asSeconds(raw)
		if err != nil {
			return fmt.Errorf("conc_duration: %w", err)
		}
		cfg.ConcDuration = dur
	}

	if raw, ok := lookupSetting(settings, "conc_intermission"); ok {
		dur, err := asSeconds(raw)
		if err != nil {
			return fmt.Errorf("conc_intermission: %w", err)
		}
		cfg.ConcIntermission = dur
	}

	if raw, ok := lookupSetting(settings, "conc_list"); ok {
		levels, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("conc_list: %w", err)
		}
		cfg.ConcList = levels
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "tracing_sample_rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("tracing_sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
