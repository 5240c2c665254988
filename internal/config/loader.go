package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag is applied.
func Defaults() Config {
	return Config{
		Workload:      WorkloadNoop,
		Producers:     1,
		Consumers:     1,
		ArrivalModel:  ArrivalModelUniform,
		FailurePolicy: FailurePolicyAttempts,
		Timeout:       30 * time.Second,
		Properties:    map[string]string{},
		Log:           LogConfig{Level: "info", Format: "console"},
		Tracing:       TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Precedence, lowest first: defaults, config file, flags.
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

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	if cfg.Properties == nil {
		cfg.Properties = map[string]string{}
	}
	return &cfg, nil
}

// setting decodes the value stored under key (or its camelCase and kebab-case
// spellings) with conv and hands it to set. Absent keys are skipped.
func setting[T any](settings map[string]interface{}, key string, conv func(interface{}) (T, error), set func(T)) error {
	raw, ok := lookupSetting(settings, key, strings.ReplaceAll(key, "_", ""), strings.ReplaceAll(key, "_", "-"))
	if !ok {
		return nil
	}
	val, err := conv(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	set(val)
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	return firstError(
		setting(settings, "workload", asString, func(v string) { cfg.Workload = Workload(lowerTrim(v)) }),
		setting(settings, "producers", asInt, func(v int) { cfg.Producers = v }),
		setting(settings, "consumers", asInt, func(v int) { cfg.Consumers = v }),
		setting(settings, "time_limit", asLimitDuration, func(v time.Duration) { cfg.TimeLimit = v }),
		setting(settings, "requests", asInt64, func(v int64) { cfg.Requests = v }),
		setting(settings, "qps", asFloat64, func(v float64) { cfg.QPS = v }),
		setting(settings, "arrival_model", asString, func(v string) {
			if model := lowerTrim(v); model != "" {
				cfg.ArrivalModel = ArrivalModel(model)
			}
		}),
		setting(settings, "queue_capacity", asInt, func(v int) { cfg.QueueCapacity = v }),
		setting(settings, "failure_policy", asString, func(v string) {
			if policy := lowerTrim(v); policy != "" {
				cfg.FailurePolicy = FailurePolicy(policy)
			}
		}),
		setting(settings, "timeout", asDuration, func(v time.Duration) { cfg.Timeout = v }),
		setting(settings, "retries", asInt, func(v int) { cfg.Retries = v }),
		setting(settings, "properties", asProperties, func(props map[string]string) {
			for k, v := range props {
				setProperty(cfg, k, v)
			}
		}),
		setting(settings, "json_output", asBool, func(v bool) { cfg.JSONOutput = v }),
		setting(settings, "output_format", asString, func(v string) { cfg.OutputFormat = OutputFormat(lowerTrim(v)) }),
		setting(settings, "progress", asBool, func(v bool) { cfg.Progress = v }),
		setting(settings, "log_errors", asBool, func(v bool) { cfg.LogErrors = v }),
		nested(settings, "log", func(entry map[string]interface{}) error { return parseLogConfig(&cfg.Log, entry) }),
		setting(settings, "metrics_addr", asString, func(v string) { cfg.MetricsAddr = strings.TrimSpace(v) }),
		nested(settings, "tracing", func(entry map[string]interface{}) error { return parseTracingConfig(&cfg.Tracing, entry) }),
		setting(settings, "thresholds", asStringSlice, func(v []string) { cfg.Thresholds = v }),
	)
}

// nested decodes a block such as "log:" or "tracing:" with parse.
func nested(settings map[string]interface{}, key string, parse func(map[string]interface{}) error) error {
	raw, ok := lookupSetting(settings, key)
	if !ok || raw == nil {
		return nil
	}
	entry, err := toStringKeyMap(raw)
	if err == nil {
		err = parse(entry)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func parseLogConfig(dst *LogConfig, entry map[string]interface{}) error {
	return firstError(
		setting(entry, "level", asString, func(v string) { dst.Level = lowerTrim(v) }),
		setting(entry, "format", asString, func(v string) { dst.Format = lowerTrim(v) }),
		setting(entry, "file", asString, func(v string) { dst.File = strings.TrimSpace(v) }),
		setting(entry, "max_size", asInt, func(v int) { dst.MaxSizeMB = v }),
		setting(entry, "max_backups", asInt, func(v int) { dst.MaxBackups = v }),
		setting(entry, "max_age", asInt, func(v int) { dst.MaxAgeDays = v }),
		setting(entry, "compress", asBool, func(v bool) { dst.Compress = v }),
	)
}

func parseTracingConfig(dst *TracingConfig, entry map[string]interface{}) error {
	return firstError(
		setting(entry, "endpoint", asString, func(v string) { dst.Endpoint = strings.TrimSpace(v) }),
		setting(entry, "protocol", asString, func(v string) { dst.Protocol = lowerTrim(v) }),
		setting(entry, "service_name", asString, func(v string) { dst.ServiceName = strings.TrimSpace(v) }),
		setting(entry, "sample_rate", asFloat64, func(v float64) { dst.SampleRate = v }),
		setting(entry, "insecure", asBool, func(v bool) { dst.Insecure = v }),
		setting(entry, "propagate", asBool, func(v bool) { dst.Propagate = &v }),
	)
}
