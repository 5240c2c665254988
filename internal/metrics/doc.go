// Package metrics provides in-process metrics collection and aggregation for
// load runs.
//
// # Collector
//
// The [Collector] type implements engine.Recorder. The engine feeds it one
// requests increment and one latency sample per consumer invocation:
//
//	collector := metrics.NewCollector()
//	eng := engine.New[T](collector)
//	collector.Start() // Mark run start for accurate RPS calculation
//	res, err := eng.Run(ctx, producers, consumers, cfg)
//
//	// Get aggregated statistics
//	stats := collector.Stats(res.Duration)
//
// # Statistics
//
// The [Stats] type provides:
//   - Request counts (total, successes, failures, producer failures)
//   - Latency percentiles (P50, P90, P95, P99) from an HDR histogram
//   - Requests per second (RPS)
//   - Failure breakdown by error type
//   - Every other named counter and timer recorded by workloads
//
// # Thread Safety
//
// A single mutex guards every map; all methods are safe to call from multiple
// goroutines.
//
// The prom subpackage exports the same events to Prometheus.
package metrics
