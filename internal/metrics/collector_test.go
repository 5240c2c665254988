package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/torosent/loadengine/internal/engine"
	"github.com/torosent/loadengine/internal/metrics"
)

type testError struct{}

func (e *testError) Error() string { return "testError" }

// record mimics the events the engine emits around one consumer invocation.
func record(c *metrics.Collector, latency time.Duration, err error) {
	c.Increment(engine.MetricRequests)
	c.Time(engine.MetricLatency, latency)
	if err != nil {
		c.Increment(engine.MetricFailures)
		c.RecordError(engine.MetricFailures, err)
	}
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	// Record deterministic latencies.
	record(c, 10*time.Millisecond, nil)
	record(c, 20*time.Millisecond, nil)
	record(c, 30*time.Millisecond, nil)
	record(c, 40*time.Millisecond, nil)
	record(c, 50*time.Millisecond, nil)

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		record(c, time.Duration(i)*time.Millisecond, nil)
	}

	stats := c.Stats(0)

	// P50 should be around 50ms or 51ms (depends on interpolation).
	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P95Latency < 94*time.Millisecond || stats.P95Latency > 96*time.Millisecond {
		t.Errorf("expected P95 ~95ms, got %s", stats.P95Latency)
	}
	// P99 should be around 99ms or 100ms.
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestFailuresAndErrorBreakdown(t *testing.T) {
	c := metrics.NewCollector()
	record(c, 10*time.Millisecond, nil)
	record(c, 15*time.Millisecond, errors.New("boom"))
	record(c, 20*time.Millisecond, &testError{})
	record(c, 25*time.Millisecond, &testError{})
	c.Increment(engine.MetricProduceFailures)
	c.RecordError(engine.MetricProduceFailures, errors.New("no task"))

	stats := c.Stats(time.Second)
	if stats.Total != 4 || stats.Failures != 3 || stats.Successes != 1 {
		t.Fatalf("total/failures/successes = %d/%d/%d, want 4/3/1", stats.Total, stats.Failures, stats.Successes)
	}
	if stats.ProduceFailures != 1 {
		t.Errorf("expected 1 produce failure, got %d", stats.ProduceFailures)
	}
	if stats.Errors["*metrics_test.testError"] != 2 {
		t.Errorf("expected 2 testError entries, got %v", stats.Errors)
	}
	if stats.Errors["*errors.errorString"] != 1 {
		t.Errorf("expected 1 errorString entry, got %v", stats.Errors)
	}
	if stats.ProduceErrors["*errors.errorString"] != 1 {
		t.Errorf("expected produce error breakdown, got %v", stats.ProduceErrors)
	}

	breakdown := c.GetErrorBreakdown()
	names := metrics.SortedErrorNames(breakdown)
	if len(names) != 2 || breakdown[names[0]] != 2 {
		t.Errorf("expected most frequent error first, got %v (%v)", names, breakdown)
	}
}

func TestNamedCountersAndTimers(t *testing.T) {
	c := metrics.NewCollector()
	c.Increment("http.retries")
	c.Increment("http.retries")
	c.Time("http.ttfb", 3*time.Millisecond)

	stats := c.Stats(0)
	if stats.Counters["http.retries"] != 2 {
		t.Errorf("expected counter 2, got %d", stats.Counters["http.retries"])
	}
	ttfb, ok := stats.Timers["http.ttfb"]
	if !ok || ttfb.Count != 1 || ttfb.Max != 3*time.Millisecond {
		t.Errorf("unexpected timer stats %+v", ttfb)
	}
	if stats.Total != 0 {
		t.Errorf("custom metrics must not count as requests, got total %d", stats.Total)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()

	record(c, 15*time.Millisecond, nil)
	record(c, 25*time.Millisecond, nil)

	stats := c.Stats(100 * time.Millisecond)

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "produce_failures", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p95_latency_ms", "p99_latency_ms", "duration_ms", "requests_per_sec", "counters", "timers"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
	if rps := parsed["requests_per_sec"].(float64); math.Abs(rps-20) > 1e-9 {
		t.Errorf("expected 20 rps, got %g", rps)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				record(c, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats(0)
	expected := workers * recordsPerWorker
	if stats.Total != int64(expected) {
		t.Errorf("expected total %d, got %d", expected, stats.Total)
	}
	if stats.Timers[engine.MetricLatency].Count != int64(expected) {
		t.Errorf("expected %d latency samples, got %d", expected, stats.Timers[engine.MetricLatency].Count)
	}
}

func TestCollectorWithEngine(t *testing.T) {
	c := metrics.NewCollector()
	eng := engine.New[int](c)

	var n int
	var mu sync.Mutex
	producer := engine.ProducerFunc[int](func(ctx context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return n, nil
	})
	consumer := engine.ConsumerFunc[int](func(ctx context.Context, task int) error {
		if task%5 == 0 {
			return &testError{}
		}
		return nil
	})

	res, err := eng.Run(context.Background(),
		[]engine.Producer[int]{producer},
		[]engine.Consumer[int]{consumer, consumer},
		engine.RunConfig{RequestLimit: 50},
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := c.Stats(res.Duration)
	if stats.Total != 50 || stats.Failures != 10 {
		t.Errorf("total/failures = %d/%d, want 50/10", stats.Total, stats.Failures)
	}
	if stats.Total != res.Completed || stats.Failures != res.Failures {
		t.Errorf("collector disagrees with result %+v", res)
	}
}
