package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/loadengine/internal/config"
	"github.com/torosent/loadengine/internal/engine"
	"github.com/torosent/loadengine/internal/workload"
)

func TestRunNoopJSONReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--workload", "noop",
		"--requests", "50",
		"--producers", "2",
		"--consumers", "3",
		"--output-format", "json",
		"--log-level", "warn",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	var report struct {
		RunID      string `json:"run_id"`
		StopReason string `json:"stop_reason"`
		Stats      struct {
			Total     int64 `json:"total"`
			Successes int64 `json:"successes"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if report.Stats.Total != 50 || report.Stats.Successes != 50 {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
	if report.StopReason != string(engine.StopReasonRequests) || report.RunID == "" {
		t.Fatalf("unexpected run identity: %+v", report)
	}
}

func TestRunHTTPWorkloadWithThresholds(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--workload", "http",
		"--target", server.URL,
		"--requests", "20",
		"--consumers", "4",
		"--threshold", "failures:rate < 0.01",
		"--threshold", "requests:count >= 20",
		"--log-level", "error",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}
	if hits.Load() != 20 {
		t.Fatalf("expected 20 requests, got %d", hits.Load())
	}
	out := stdout.String()
	if !strings.Contains(out, "Total Requests:    20") || !strings.Contains(out, "Thresholds:") {
		t.Fatalf("unexpected report:\n%s", out)
	}
	if !strings.Contains(out, "http_2xx: 20") {
		t.Fatalf("expected workload counters in report:\n%s", out)
	}
}

func TestRunFailingThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--workload", "http",
		"--target", server.URL,
		"--requests", "5",
		"--threshold", "failures:rate < 0.5",
		"--log-level", "error",
	}, &stdout, &stderr)
	if !errors.Is(err, errThresholdsFailed) {
		t.Fatalf("expected threshold failure, got %v", err)
	}
}

func TestRunReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--workload", "http",
		"--target", server.URL,
		"--requests", "3",
		"--retries", "2",
		"--log-errors",
		"--log-level", "warn",
	}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "3 requests failed") {
		t.Fatalf("expected failure error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "task failed") {
		t.Fatalf("expected failure logs on stderr, got %q", stderr.String())
	}
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{
		"--workload", "sleep",
		"--property", "consume_latency=10ms",
		"--log-level", "error",
	}, &stdout, &stderr)
	if !errors.Is(err, engine.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !strings.Contains(stdout.String(), "Stopped By:        interrupted") {
		t.Fatalf("expected a report for the interrupted run:\n%s", stdout.String())
	}
}

func TestRunHelpAndValidation(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), nil, &stdout, &stderr); err != nil {
		t.Fatalf("run() without args should print help, got %v", err)
	}

	err := run(context.Background(), []string{"--workload", "http"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected config.ValidationError, got %v", err)
	}

	err = run(context.Background(), []string{"--workload", "noop", "--threshold", "latency:p42 < 1"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("expected threshold parse error, got %v", err)
	}
}

func TestRunServesMetrics(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--workload", "noop",
		"--requests", "10",
		"--metrics-addr", "127.0.0.1:0",
		"--output-format", "yaml",
		"--log-level", "info",
		"--log-format", "json",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stderr.String(), "serving prometheus metrics") {
		t.Fatalf("expected metrics server log, got %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "total: 10") {
		t.Fatalf("expected YAML report, got:\n%s", stdout.String())
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(3)
	if policy.MaxAttempts != 4 {
		t.Fatalf("MaxAttempts = %d, want 4", policy.MaxAttempts)
	}
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{&workload.HTTPError{StatusCode: 503}, true},
		{&workload.HTTPError{StatusCode: 429}, true},
		{&workload.HTTPError{StatusCode: 404}, false},
		{fmt.Errorf("wrapped: %w", &workload.HTTPError{StatusCode: 502}), true},
		{&workload.ExpectationError{Check: "status"}, false},
		{errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		if got := policy.ShouldRetry(tt.err); got != tt.want {
			t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	for attempt := 1; attempt <= 10; attempt++ {
		d := policy.DelayFunc(attempt, nil)
		if d < baseRetryDelay || d > maxRetryDelay+maxRetryDelay/2 {
			t.Errorf("DelayFunc(%d) = %s out of bounds", attempt, d)
		}
	}
}

func TestToRunConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.TimeLimit = config.Unlimited
	cfg.Requests = 10
	cfg.QPS = 5
	cfg.ArrivalModel = config.ArrivalModelPoisson
	cfg.FailurePolicy = config.FailurePolicySuccesses
	cfg.Properties = map[string]string{"target": "x"}

	rc := toRunConfig(&cfg)
	if rc.TimeLimit != engine.Unlimited || rc.RequestLimit != 10 || rc.QPSLimit != 5 {
		t.Fatalf("limits not carried over: %+v", rc)
	}
	if rc.Arrival != engine.ArrivalModelPoisson || rc.FailurePolicy != engine.CountSuccesses {
		t.Fatalf("models not carried over: %+v", rc)
	}
	if rc.Properties["target"] != "x" {
		t.Fatalf("properties not carried over: %+v", rc.Properties)
	}
}
