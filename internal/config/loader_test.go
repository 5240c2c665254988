package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int64
	}{
		{int64(1) << 40, 1 << 40},
		{"9000000000", 9_000_000_000},
		{-1, -1},
		{uint64(7), 7},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt64(tt.input)
		if err != nil {
			t.Errorf("asInt64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt64(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
	if _, err := asInt64(uint64(1) << 63); err == nil {
		t.Error("asInt64(1<<63) error = nil, want overflow")
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsLimitDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{-1, Unlimited},
		{"-1", Unlimited},
		{"unlimited", Unlimited},
		{float64(-1), Unlimited},
		{"2s", 2 * time.Second},
		{0, 0},
	}

	for _, tt := range tests {
		got, err := asLimitDuration(tt.input)
		if err != nil {
			t.Errorf("asLimitDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asLimitDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsPropertiesFlattensNestedMaps(t *testing.T) {
	input := map[string]interface{}{
		"target": "http://example.com",
		"header": map[string]interface{}{
			"X-Trace": "abc",
		},
		"consume_latency": "40ms",
		"retries":         3,
	}

	got, err := asProperties(input)
	if err != nil {
		t.Fatalf("asProperties() error = %v", err)
	}

	want := map[string]string{
		"target":          "http://example.com",
		"header.x-trace":  "abc",
		"consume_latency": "40ms",
		"retries":         "3",
	}
	if len(got) != len(want) {
		t.Fatalf("asProperties() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("properties[%q] = %q, want %q", k, got[k], v)
		}
	}

	if _, err := asProperties("flat"); err == nil {
		t.Error("asProperties(string) error = nil, want error")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"workload":       "HTTP",
		"producers":      2,
		"consumers":      8,
		"time_limit":     "5s",
		"requests":       -1,
		"qps":            12.5,
		"arrival_model":  "Poisson",
		"failure_policy": "successes",
		"properties": map[string]interface{}{
			"target": "http://example.com",
		},
		"log": map[string]interface{}{
			"level":    "debug",
			"file":     "/tmp/loadengine.log",
			"max_size": 50,
		},
		"tracing": map[string]interface{}{
			"endpoint":  "localhost:4317",
			"propagate": false,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Workload != WorkloadHTTP {
		t.Errorf("Workload = %q, want http", cfg.Workload)
	}
	if cfg.Producers != 2 || cfg.Consumers != 8 {
		t.Errorf("Producers/Consumers = %d/%d, want 2/8", cfg.Producers, cfg.Consumers)
	}
	if cfg.TimeLimit != 5*time.Second {
		t.Errorf("TimeLimit = %v, want 5s", cfg.TimeLimit)
	}
	if cfg.Requests != Unlimited {
		t.Errorf("Requests = %d, want unlimited", cfg.Requests)
	}
	if cfg.QPS != 12.5 {
		t.Errorf("QPS = %g, want 12.5", cfg.QPS)
	}
	if cfg.ArrivalModel != ArrivalModelPoisson {
		t.Errorf("ArrivalModel = %q, want poisson", cfg.ArrivalModel)
	}
	if cfg.FailurePolicy != FailurePolicySuccesses {
		t.Errorf("FailurePolicy = %q, want successes", cfg.FailurePolicy)
	}
	if cfg.Properties["target"] != "http://example.com" {
		t.Errorf("Properties[target] = %q, want http://example.com", cfg.Properties["target"])
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/tmp/loadengine.log" || cfg.Log.MaxSizeMB != 50 {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Log.Format = %q, want default console", cfg.Log.Format)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing = %+v, want endpoint set and propagation off", cfg.Tracing)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Properties["target"] = "http://from-file"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--consumers=5",
		"--requests=-1",
		"--property=header.X-Test=123",
		"--target=http://from-flag",
		"--log-level=WARN",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Consumers != 5 {
		t.Errorf("Consumers = %d, want 5", cfg.Consumers)
	}
	if cfg.Producers != 1 {
		t.Errorf("Producers = %d, want untouched default 1", cfg.Producers)
	}
	if cfg.Requests != Unlimited {
		t.Errorf("Requests = %d, want -1", cfg.Requests)
	}
	if cfg.Properties["header.x-test"] != "123" {
		t.Errorf("Properties[header.x-test] = %q, want 123", cfg.Properties["header.x-test"])
	}
	if cfg.Properties["target"] != "http://from-flag" {
		t.Errorf("Properties[target] = %q, want flag value", cfg.Properties["target"])
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--workload=sleep",
		"--producers=2",
		"--qps=10",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workload != WorkloadSleep {
		t.Errorf("Workload = %q, want sleep", cfg.Workload)
	}
	if cfg.Producers != 2 {
		t.Errorf("Producers = %d, want 2", cfg.Producers)
	}
	if cfg.QPS != 10 {
		t.Errorf("QPS = %g, want 10", cfg.QPS)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default 30s", cfg.Timeout)
	}
}
