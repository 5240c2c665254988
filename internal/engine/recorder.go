package engine

import "time"

// Metric names emitted by the engine.
const (
	MetricRequests        = "requests"
	MetricLatency         = "latency"
	MetricFailures        = "failures"
	MetricProduceFailures = "produce_failures"
)

// Recorder receives metric events. Implementations must be safe for
// concurrent use; the engine calls them from every consumer goroutine.
type Recorder interface {
	Increment(name string)
	Time(name string, d time.Duration)
}

// ErrorRecorder is implemented by recorders that keep a breakdown of failures.
type ErrorRecorder interface {
	RecordError(name string, err error)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Increment(string) {}
func (NopRecorder) Time(string, time.Duration) {}

type multiRecorder []Recorder

// MultiRecorder fans events out to every non-nil recorder.
func MultiRecorder(recorders ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiRecorder) Increment(name string) {
	for _, r := range m {
		r.Increment(name)
	}
}

func (m multiRecorder) Time(name string, d time.Duration) {
	for _, r := range m {
		r.Time(name, d)
	}
}

func (m multiRecorder) RecordError(name string, err error) {
	for _, r := range m {
		if er, ok := r.(ErrorRecorder); ok {
			er.RecordError(name, err)
		}
	}
}
