package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadengine",
		Short:         "Drive synthetic load through producer and consumer workers",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Workload flags
	flags.StringP("workload", "w", string(WorkloadNoop), "Built-in workload: 'noop', 'sleep', or 'http'")
	flags.String("target", "", "Target URL for the http workload (sets property 'target')")
	flags.StringToString("property", nil, "Workload property key=value pairs (repeatable)")
	flags.IntP("producers", "p", 1, "Number of producer workers")
	flags.IntP("consumers", "c", 1, "Number of consumer workers")

	// Load control flags
	flags.DurationP("time-limit", "d", 0, "How long to run (e.g. 30s, 1m; 0 means unlimited)")
	flags.Int64P("requests", "n", 0, "Total number of tasks to produce (0 or -1 means unlimited)")
	flags.Float64P("qps", "r", 0, "Aggregate tasks per second ceiling (0 or -1 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing tasks (uniform or poisson)")
	flags.Int("queue-capacity", 0, "Work queue capacity (0 means one slot per consumer)")
	flags.String("failure-policy", string(FailurePolicyAttempts), "Whether failed tasks count toward --requests: 'attempts' or 'successes'")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout for the http workload")
	flags.Int("retries", 0, "Number of retries per task")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("output-format", "", "Report format: 'text', 'json', or 'yaml'")
	flags.Bool("progress", false, "Print a progress line every second")
	flags.Bool("log-errors", false, "Log each failed task")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Logging flags
	flags.String("log-level", "info", "Log level: debug, info, warn, or error")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.String("log-file", "", "Write logs to a rotating file instead of stderr")

	// Observability flags
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("tracing-endpoint", "", "OTLP endpoint for trace export")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'latency:p95 < 500')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// override copies flag name into the config through set when the flag was
// given on the command line.
func override[T any](fs *pflag.FlagSet, name string, get func(string) (T, error), set func(T)) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := get(name)
	if err != nil {
		return err
	}
	set(val)
	return nil
}

func lowerTrim(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	overrides := []error{
		override(fs, "workload", fs.GetString, func(v string) { cfg.Workload = Workload(lowerTrim(v)) }),
		override(fs, "producers", fs.GetInt, func(v int) { cfg.Producers = v }),
		override(fs, "consumers", fs.GetInt, func(v int) { cfg.Consumers = v }),
		override(fs, "time-limit", fs.GetDuration, func(v time.Duration) { cfg.TimeLimit = v }),
		override(fs, "requests", fs.GetInt64, func(v int64) { cfg.Requests = v }),
		override(fs, "qps", fs.GetFloat64, func(v float64) { cfg.QPS = v }),
		override(fs, "arrival-model", fs.GetString, func(v string) { cfg.ArrivalModel = ArrivalModel(lowerTrim(v)) }),
		override(fs, "queue-capacity", fs.GetInt, func(v int) { cfg.QueueCapacity = v }),
		override(fs, "failure-policy", fs.GetString, func(v string) { cfg.FailurePolicy = FailurePolicy(lowerTrim(v)) }),
		override(fs, "timeout", fs.GetDuration, func(v time.Duration) { cfg.Timeout = v }),
		override(fs, "retries", fs.GetInt, func(v int) { cfg.Retries = v }),
		override(fs, "json-output", fs.GetBool, func(v bool) { cfg.JSONOutput = v }),
		override(fs, "output-format", fs.GetString, func(v string) { cfg.OutputFormat = OutputFormat(lowerTrim(v)) }),
		override(fs, "progress", fs.GetBool, func(v bool) { cfg.Progress = v }),
		override(fs, "log-errors", fs.GetBool, func(v bool) { cfg.LogErrors = v }),
		override(fs, "log-level", fs.GetString, func(v string) { cfg.Log.Level = lowerTrim(v) }),
		override(fs, "log-format", fs.GetString, func(v string) { cfg.Log.Format = lowerTrim(v) }),
		override(fs, "log-file", fs.GetString, func(v string) { cfg.Log.File = strings.TrimSpace(v) }),
		override(fs, "metrics-addr", fs.GetString, func(v string) { cfg.MetricsAddr = strings.TrimSpace(v) }),
		override(fs, "tracing-endpoint", fs.GetString, func(v string) { cfg.Tracing.Endpoint = strings.TrimSpace(v) }),
		override(fs, "tracing-protocol", fs.GetString, func(v string) { cfg.Tracing.Protocol = lowerTrim(v) }),
		override(fs, "tracing-insecure", fs.GetBool, func(v bool) { cfg.Tracing.Insecure = v }),
		override(fs, "threshold", fs.GetStringSlice, func(v []string) { cfg.Thresholds = v }),
	}
	for _, err := range overrides {
		if err != nil {
			return err
		}
	}

	// --target is applied after --property so it wins over property target=.
	if fs.Changed("property") {
		vals, err := fs.GetStringToString("property")
		if err != nil {
			return err
		}
		for k, v := range vals {
			key := lowerTrim(k)
			if key == "" {
				return fmt.Errorf("property key cannot be empty")
			}
			setProperty(cfg, key, v)
		}
	}
	return override(fs, "target", fs.GetString, func(v string) { setProperty(cfg, "target", strings.TrimSpace(v)) })
}

func setProperty(cfg *Config, key, value string) {
	if cfg.Properties == nil {
		cfg.Properties = map[string]string{}
	}
	cfg.Properties[key] = value
}
