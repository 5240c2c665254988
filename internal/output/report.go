// Package output renders run summaries and live progress for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/loadengine/internal/metrics"
	"github.com/torosent/loadengine/internal/threshold"
)

// Report is everything printed at the end of a run.
type Report struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	StopReason string             `json:"stop_reason" yaml:"stop_reason"`
	Stats      metrics.Stats      `json:"stats" yaml:"stats"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Write renders r in the given format: "text" (or empty), "json" or "yaml".
func Write(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case "", "text":
		PrintReport(w, r)
		return nil
	case "json":
		return PrintJSONReport(w, r)
	case "yaml":
		return PrintYAMLReport(w, r)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Load Run Results ---")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	}
	if r.StopReason != "" {
		fmt.Fprintf(w, "Stopped By:        %s\n", r.StopReason)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	if stats.ProduceFailures > 0 {
		fmt.Fprintf(w, "Produce Failures:  %d\n", stats.ProduceFailures)
	}
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nFailure Breakdown:")
		writeBreakdown(w, stats.Errors, "  ")
	}
	if len(stats.ProduceErrors) > 0 {
		fmt.Fprintln(w, "\nProduce Failure Breakdown:")
		writeBreakdown(w, stats.ProduceErrors, "  ")
	}

	if extra := customCounters(stats.Counters); len(extra) > 0 {
		fmt.Fprintln(w, "\nCounters:")
		for _, name := range extra {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.Counters[name])
		}
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// writeBreakdown prints error counts under friendly names, largest first.
func writeBreakdown(w io.Writer, byType map[string]int, indent string) {
	friendly := make(map[string]int, len(byType))
	for typeName, count := range byType {
		friendly[metrics.FriendlyErrorName(typeName)] += count
	}
	for _, name := range metrics.SortedErrorNames(friendly) {
		fmt.Fprintf(w, "%s%s: %d\n", indent, name, friendly[name])
	}
}

// customCounters lists counters other than the ones already in the summary.
func customCounters(counters map[string]int64) []string {
	builtin := map[string]bool{
		"requests":         true,
		"failures":         true,
		"produce_failures": true,
	}
	var names []string
	for name := range counters {
		if !builtin[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
