package workload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/torosent/loadengine/internal/config"
)

func TestExpectationsCheck(t *testing.T) {
	body := []byte(`{"status": "ok", "user": {"id": 42}, "items": [{"id": 1}]}`)

	tests := []struct {
		name    string
		props   map[string]string
		wantErr bool
	}{
		{name: "none", props: map[string]string{}},
		{name: "json path", props: map[string]string{"expect.json": "user.id"}},
		{name: "dollar prefix", props: map[string]string{"expect.json": "$.items.0.id"}},
		{name: "bare dollar", props: map[string]string{"expect.json": "$"}},
		{name: "missing path", props: map[string]string{"expect.json": "user.name"}, wantErr: true},
		{name: "value match", props: map[string]string{"expect.json": "status", "expect.json_value": "ok"}},
		{name: "value mismatch", props: map[string]string{"expect.json": "status", "expect.json_value": "down"}, wantErr: true},
		{name: "body regex", props: map[string]string{"expect.body": `"id":\s*42`}},
		{name: "body regex miss", props: map[string]string{"expect.body": `error`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := parseExpectations(tt.props)
			if err != nil {
				t.Fatalf("parseExpectations() error = %v", err)
			}
			err = exp.check(body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
			var expErr *ExpectationError
			if err != nil && !errors.As(err, &expErr) {
				t.Fatalf("expected *ExpectationError, got %T", err)
			}
		})
	}
}

func TestParseExpectationsRejectsBadInput(t *testing.T) {
	if _, err := parseExpectations(map[string]string{"expect.body": "("}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
	if _, err := parseExpectations(map[string]string{"expect.json_value": "ok"}); err == nil {
		t.Fatal("expected error for value without path")
	}
}

func TestHTTPWorkloadChecksExpectations(t *testing.T) {
	var degraded atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !degraded.Load() {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer server.Close()

	rec := &countingRecorder{}
	w, err := New(config.WorkloadHTTP, map[string]string{
		"target":            server.URL,
		"expect.json":       "$.status",
		"expect.json_value": "ok",
	}, Options{Recorder: rec})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	task, _ := w.Producers(1)[0].Produce(context.Background())

	if err := w.Consumer().Consume(context.Background(), task); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	degraded.Store(true)
	err = w.Consumer().Consume(context.Background(), task)
	var expErr *ExpectationError
	if !errors.As(err, &expErr) {
		t.Fatalf("expected *ExpectationError, got %v", err)
	}
	if rec.counts["http_expectation_failures"] != 1 {
		t.Fatalf("expected 1 expectation failure, got %v", rec.counts)
	}
	if rec.counts["http_2xx"] != 2 {
		t.Fatalf("expected 2 http_2xx counts, got %v", rec.counts)
	}
}

func TestHTTPWorkloadRejectsBadExpectation(t *testing.T) {
	_, err := New(config.WorkloadHTTP, map[string]string{"target": "http://localhost", "expect.body": "["}, Options{})
	if err == nil {
		t.Fatal("expected error for invalid expect.body")
	}
}
