package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/loadengine/internal/engine"
)

// Collector records named counters and timers in a thread-safe manner. It
// implements engine.Recorder and engine.ErrorRecorder.
type Collector struct {
	mu           sync.Mutex
	counters     map[string]int64
	timers       map[string]*timer
	errorsByType map[string]map[string]int64 // metric name -> error type -> count
	start        time.Time
}

var (
	_ engine.Recorder      = (*Collector)(nil)
	_ engine.ErrorRecorder = (*Collector)(nil)
)

type timer struct {
	hist  *hdrhistogram.Histogram
	count int64
	min   time.Duration
	max   time.Duration
	sum   time.Duration
}

// TimerStats summarizes one named timer.
type TimerStats struct {
	Count  int64         `json:"count" yaml:"count"`
	Min    time.Duration `json:"-" yaml:"-"`
	Max    time.Duration `json:"-" yaml:"-"`
	Mean   time.Duration `json:"-" yaml:"-"`
	P50    time.Duration `json:"-" yaml:"-"`
	P90    time.Duration `json:"-" yaml:"-"`
	P95    time.Duration `json:"-" yaml:"-"`
	P99    time.Duration `json:"-" yaml:"-"`
	MinMs  float64       `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64       `json:"max_ms" yaml:"max_ms"`
	MeanMs float64       `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64       `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64       `json:"p90_ms" yaml:"p90_ms"`
	P95Ms  float64       `json:"p95_ms" yaml:"p95_ms"`
	P99Ms  float64       `json:"p99_ms" yaml:"p99_ms"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Total           int64         `json:"total" yaml:"total"`
	Successes       int64         `json:"successes" yaml:"successes"`
	Failures        int64         `json:"failures" yaml:"failures"`
	ProduceFailures int64         `json:"produce_failures" yaml:"produce_failures"`
	MinLatency      time.Duration `json:"-" yaml:"-"`
	MaxLatency      time.Duration `json:"-" yaml:"-"`
	MeanLatency     time.Duration `json:"-" yaml:"-"`
	P50Latency      time.Duration `json:"-" yaml:"-"`
	P90Latency      time.Duration `json:"-" yaml:"-"`
	P95Latency      time.Duration `json:"-" yaml:"-"`
	P99Latency      time.Duration `json:"-" yaml:"-"`
	Duration        time.Duration `json:"-" yaml:"-"`
	RequestsPerSec  float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	// Errors counts consumer failures by error type, ProduceErrors producer
	// failures.
	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	ProduceErrors map[string]int `json:"produce_errors,omitempty" yaml:"produce_errors,omitempty"`

	// Counters and Timers hold every named metric, including the ones the
	// fields above are derived from.
	Counters map[string]int64      `json:"counters,omitempty" yaml:"counters,omitempty"`
	Timers   map[string]TimerStats `json:"timers,omitempty" yaml:"timers,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		counters:     make(map[string]int64),
		timers:       make(map[string]*timer),
		errorsByType: make(map[string]map[string]int64),
		start:        time.Now(),
	}
}

func newTimer() *timer {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &timer{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Start resets the reference time used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since the collector was created or last started.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

func (c *Collector) Increment(name string) {
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

func (c *Collector) Time(name string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timers[name]
	if !ok {
		t = newTimer()
		c.timers[name] = t
	}
	t.record(d)
}

// RecordError keeps a per-type breakdown of the errors behind a failure
// counter.
func (c *Collector) RecordError(name string, err error) {
	if err == nil {
		return
	}
	errorType := fmt.Sprintf("%T", err)
	if len(errorType) > 30 {
		errorType = errorType[len(errorType)-30:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.errorsByType[name]
	if !ok {
		byType = make(map[string]int64)
		c.errorsByType[name] = byType
	}
	byType[errorType]++
}

func (t *timer) record(d time.Duration) {
	if d > 0 {
		us := d.Microseconds()
		if us < t.hist.LowestTrackableValue() {
			us = t.hist.LowestTrackableValue()
		}
		if us > t.hist.HighestTrackableValue() {
			us = t.hist.HighestTrackableValue()
		}
		_ = t.hist.RecordValue(us)
	}
	t.count++
	t.sum += d
	if t.count == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

func (t *timer) stats() TimerStats {
	s := TimerStats{Count: t.count, Min: t.min, Max: t.max}
	if t.count > 0 {
		s.Mean = time.Duration(int64(t.sum) / t.count)
	}
	if t.hist.TotalCount() > 0 {
		s.P50 = time.Duration(t.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(t.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P95 = time.Duration(t.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(t.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	s.MinMs = toMs(s.Min)
	s.MaxMs = toMs(s.Max)
	s.MeanMs = toMs(s.Mean)
	s.P50Ms = toMs(s.P50)
	s.P90Ms = toMs(s.P90)
	s.P95Ms = toMs(s.P95)
	s.P99Ms = toMs(s.P99)
	return s
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Total:           c.counters[engine.MetricRequests],
		Failures:        c.counters[engine.MetricFailures],
		ProduceFailures: c.counters[engine.MetricProduceFailures],
	}
	stats.Successes = stats.Total - stats.Failures

	if len(c.counters) > 0 {
		stats.Counters = make(map[string]int64, len(c.counters))
		for k, v := range c.counters {
			stats.Counters[k] = v
		}
	}
	if len(c.timers) > 0 {
		stats.Timers = make(map[string]TimerStats, len(c.timers))
		for k, t := range c.timers {
			stats.Timers[k] = t.stats()
		}
	}

	if latency, ok := stats.Timers[engine.MetricLatency]; ok {
		stats.MinLatency = latency.Min
		stats.MaxLatency = latency.Max
		stats.MeanLatency = latency.Mean
		stats.P50Latency = latency.P50
		stats.P90Latency = latency.P90
		stats.P95Latency = latency.P95
		stats.P99Latency = latency.P99
	}
	stats.MinLatencyMs = toMs(stats.MinLatency)
	stats.MaxLatencyMs = toMs(stats.MaxLatency)
	stats.MeanLatencyMs = toMs(stats.MeanLatency)
	stats.P50LatencyMs = toMs(stats.P50Latency)
	stats.P90LatencyMs = toMs(stats.P90Latency)
	stats.P95LatencyMs = toMs(stats.P95Latency)
	stats.P99LatencyMs = toMs(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMs(elapsed)
	if elapsed > 0 && stats.Total > 0 {
		stats.RequestsPerSec = float64(stats.Total) / elapsed.Seconds()
	}

	stats.Errors = copyBreakdown(c.errorsByType[engine.MetricFailures])
	stats.ProduceErrors = copyBreakdown(c.errorsByType[engine.MetricProduceFailures])

	return stats
}

func copyBreakdown(src map[string]int64) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = int(v)
	}
	return out
}

// GetErrorBreakdown returns consumer failure counts keyed by friendly error
// name.
func (c *Collector) GetErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByType[engine.MetricFailures] {
		result[FriendlyErrorName(k)] += int(v)
	}
	return result
}

// SortedErrorNames orders an error breakdown by count, then name.
func SortedErrorNames(breakdown map[string]int) []string {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if breakdown[names[i]] != breakdown[names[j]] {
			return breakdown[names[i]] > breakdown[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
