package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// Unlimited disables a limit, as does its zero value.
const Unlimited = -1

type Workload string

const (
	WorkloadNoop  Workload = "noop"
	WorkloadSleep Workload = "sleep"
	WorkloadHTTP  Workload = "http"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type FailurePolicy string

const (
	FailurePolicyAttempts  FailurePolicy = "attempts"
	FailurePolicySuccesses FailurePolicy = "successes"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

type Config struct {
	Workload      Workload          `mapstructure:"workload"`
	Producers     int               `mapstructure:"producers"`
	Consumers     int               `mapstructure:"consumers"`
	TimeLimit     time.Duration     `mapstructure:"time_limit"`
	Requests      int64             `mapstructure:"requests"`
	QPS           float64           `mapstructure:"qps"`
	ArrivalModel  ArrivalModel      `mapstructure:"arrival_model"`
	QueueCapacity int               `mapstructure:"queue_capacity"`
	FailurePolicy FailurePolicy     `mapstructure:"failure_policy"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	Retries       int               `mapstructure:"retries"`
	Properties    map[string]string `mapstructure:"properties"`
	JSONOutput    bool              `mapstructure:"json_output"`
	OutputFormat  OutputFormat      `mapstructure:"output_format"`
	Progress      bool              `mapstructure:"progress"`
	LogErrors     bool              `mapstructure:"log_errors"`
	Log           LogConfig         `mapstructure:"log"`
	MetricsAddr   string            `mapstructure:"metrics_addr"`
	Tracing       TracingConfig     `mapstructure:"tracing"`
	Thresholds    []string          `mapstructure:"thresholds"`
	ConfigFile    string            `mapstructure:"-"`
}

// LogConfig configures the process logger. File enables rotation through
// lumberjack; an empty File logs to stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "console" or "json"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// TracingConfig configures OTLP trace export. Tracing is off unless an
// endpoint is set here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Format resolves the report format; JSONOutput wins over an unset format.
func (c Config) Format() OutputFormat {
	if c.OutputFormat == "" {
		if c.JSONOutput {
			return OutputFormatJSON
		}
		return OutputFormatText
	}
	return c.OutputFormat
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	// Security warnings for high rate/concurrency
	if c.QPS > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate limit configured (%g QPS). Ensure you have authorization to test the target system.", c.QPS))
	}
	if c.Consumers > 500 && c.Workload == WorkloadHTTP {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d consumers). Ensure you have authorization to test the target system.", c.Consumers))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if c.Producers < 1 {
		issues = append(issues, "producers must be >= 1")
	}
	if c.Consumers < 1 {
		issues = append(issues, "consumers must be >= 1")
	}
	if c.TimeLimit < 0 && c.TimeLimit != Unlimited {
		issues = append(issues, "time_limit must be >= 0 or -1 (unlimited)")
	}
	if c.Requests < 0 && c.Requests != Unlimited {
		issues = append(issues, "requests must be >= 0 or -1 (unlimited)")
	}
	if math.IsNaN(c.QPS) || (c.QPS < 0 && c.QPS != Unlimited) {
		issues = append(issues, "qps must be >= 0 or -1 (unlimited)")
	}
	if c.QueueCapacity < 0 {
		issues = append(issues, "queue_capacity must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}

	switch c.ArrivalModel {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.ArrivalModel))
	}
	switch c.FailurePolicy {
	case "", FailurePolicyAttempts, FailurePolicySuccesses:
	default:
		issues = append(issues, fmt.Sprintf("failure_policy must be 'attempts' or 'successes', got %q", c.FailurePolicy))
	}

	issues = append(issues, validateWorkload(c.Workload, c.Properties)...)
	issues = append(issues, validateOutput(c)...)
	issues = append(issues, validateLogConfig(c.Log)...)

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateWorkload(workload Workload, props map[string]string) []string {
	var issues []string
	switch workload {
	case WorkloadNoop, WorkloadSleep:
	case WorkloadHTTP:
		if strings.TrimSpace(props["target"]) == "" {
			issues = append(issues, "http workload: property 'target' is required (use --target or --property target=URL)")
		}
	case "":
		issues = append(issues, "workload is required (use --help for usage information)")
	default:
		issues = append(issues, fmt.Sprintf("workload must be 'noop', 'sleep', or 'http', got %q", workload))
	}
	for _, key := range []string{"produce_latency", "consume_latency"} {
		if raw, ok := props[key]; ok {
			if d, err := time.ParseDuration(raw); err != nil || d < 0 {
				issues = append(issues, fmt.Sprintf("property %s must be a non-negative duration, got %q", key, raw))
			}
		}
	}
	return issues
}

func validateOutput(c Config) []string {
	var issues []string
	switch c.OutputFormat {
	case "", OutputFormatText, OutputFormatJSON, OutputFormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("output_format must be 'text', 'json', or 'yaml', got %q", c.OutputFormat))
	}
	if c.JSONOutput && c.OutputFormat != "" && c.OutputFormat != OutputFormatJSON {
		issues = append(issues, "json-output and output-format are mutually exclusive")
	}
	if c.Progress && c.Format() != OutputFormatText {
		issues = append(issues, "progress is only available with text output")
	}
	return issues
}

func validateLogConfig(l LogConfig) []string {
	var issues []string
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log: level must be debug, info, warn, or error, got %q", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format must be 'console' or 'json', got %q", l.Format))
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		issues = append(issues, "log: rotation settings must be >= 0")
	}
	return issues
}
