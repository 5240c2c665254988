// Package engine provides the load generation core for loadengine.
//
// An [Engine] drives a stream of tasks from a set of producers to a set of
// consumers until one of the configured limits is reached:
//   - TimeLimit: wall-clock cap on the run
//   - RequestLimit: exact number of tasks that may ever be produced
//   - QPSLimit: aggregate ceiling on how fast permits are handed out
//
// # Basic Usage
//
//	eng := engine.New[string](collector, engine.WithLogger(logger))
//	res, err := eng.Run(ctx,
//		[]engine.Producer[string]{engine.ProducerFunc[string](produce)},
//		[]engine.Consumer[string]{engine.ConsumerFunc[string](consume)},
//		engine.RunConfig{RequestLimit: 1000, QPSLimit: 100},
//	)
//
// Every producer and every consumer gets one dedicated goroutine for the
// lifetime of the run. Producers hand tasks to consumers through a bounded
// queue; when the queue is full producers block, when it is empty consumers
// block.
//
// # Limits
//
// A limit set to zero or [Unlimited] never stops or throttles the run. The
// request limit is an exact cutoff: at most RequestLimit tasks are produced and
// Run returns only after all of them were consumed. The QPS limit only slows
// permit issuance and never ends a run on its own.
//
// # Metrics
//
// Each consumer invocation emits one [MetricRequests] increment and one
// [MetricLatency] timing sample into the [Recorder] passed to [New]. Recorders
// that also implement [ErrorRecorder] receive the failing error.
//
// # Errors
//
// Configuration problems are reported as [ValidationError] before any
// goroutine starts. Cancelling the context passed to Run interrupts the run:
// every goroutine is cancelled and joined, then Run returns an error matching
// [ErrInterrupted]. A producer or consumer returning an error keeps its worker
// running; returning [ErrRetire] (or panicking) retires that worker only.
package engine
